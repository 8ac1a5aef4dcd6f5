package pagination

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// EncodeToken serialises the cursor into a base64 URL-safe page token. A zero cursor yields "".
func EncodeToken(cursor Cursor) (string, error) {
	if cursor.Offset <= 0 {
		return "", nil
	}
	data, err := json.Marshal(cursor)
	if err != nil {
		return "", fmt.Errorf("pagination: encode token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// DecodeToken parses a token produced by EncodeToken.
func DecodeToken(token string) (Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Cursor{}, nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	var cursor Cursor
	if err := json.Unmarshal(decoded, &cursor); err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	if cursor.Offset < 0 {
		return Cursor{}, fmt.Errorf("%w: negative offset", ErrInvalidPageToken)
	}
	return cursor, nil
}

// NextToken returns the token for the page after one that began at offset. It returns "" when
// that page held fewer than pageSize items.
func NextToken(offset, pageSize, returned int) string {
	if pageSize <= 0 || returned < pageSize {
		return ""
	}
	token, err := EncodeToken(Cursor{Offset: offset + returned})
	if err != nil {
		return ""
	}
	return token
}

// Window normalises a page size and token into a SQL limit/offset pair.
func Window(pageSize int, token string) (limit int, offset int, err error) {
	limit = pageSize
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > DefaultMaxPageSize {
		limit = DefaultMaxPageSize
	}
	cursor, err := DecodeToken(token)
	if err != nil {
		return 0, 0, err
	}
	return limit, cursor.Offset, nil
}
