package storage

import (
	"fmt"
	"path"
	"strings"
)

// ImagePurpose selects the object layout for an uploaded image.
type ImagePurpose string

const (
	PurposeProductImage  ImagePurpose = "product-image"
	PurposeCategoryImage ImagePurpose = "category-image"
)

// PathParams are the identifiers an object key is composed from.
type PathParams struct {
	ProductID  string
	CategoryID string
	UploadID   string
	FileName   string
}

// BuildObjectPath returns the object key for purpose. Every segment must be a single
// non-empty path element.
//
//	product-image:  catalog/products/{product}/images/{upload}/{file}
//	category-image: catalog/categories/{category}/{upload}/{file}
func BuildObjectPath(purpose ImagePurpose, p PathParams) (string, error) {
	var owner, ownerName, prefix string
	switch purpose {
	case PurposeProductImage:
		owner, ownerName = p.ProductID, "productID"
	case PurposeCategoryImage:
		owner, ownerName = p.CategoryID, "categoryID"
	default:
		return "", fmt.Errorf("storage: unsupported image purpose %q", purpose)
	}

	segments := make([]string, 0, 3)
	for _, s := range []struct{ name, value string }{
		{ownerName, owner},
		{"uploadID", p.UploadID},
		{"fileName", p.FileName},
	} {
		value, err := segment(s.name, s.value)
		if err != nil {
			return "", err
		}
		segments = append(segments, value)
	}

	if purpose == PurposeProductImage {
		prefix = ProductImagePrefix(segments[0])
	} else {
		prefix = "catalog/categories/" + segments[0] + "/"
	}
	return prefix + segments[1] + "/" + segments[2], nil
}

// ProductImagePrefix is the prefix every image object of productID lives under.
func ProductImagePrefix(productID string) string {
	return "catalog/products/" + strings.TrimSpace(productID) + "/images/"
}

// BelongsToProduct reports whether objectPath is a clean key under the product's image prefix.
func BelongsToProduct(productID, objectPath string) bool {
	objectPath = strings.TrimSpace(objectPath)
	if objectPath == "" || strings.Contains(objectPath, "..") || path.Clean(objectPath) != objectPath {
		return false
	}
	return strings.HasPrefix(objectPath, ProductImagePrefix(productID))
}

func segment(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	switch {
	case value == "":
		return "", fmt.Errorf("storage: %s is required", name)
	case strings.ContainsAny(value, `/\`):
		return "", fmt.Errorf("storage: %s contains a path separator", name)
	case strings.Contains(value, ".."):
		return "", fmt.Errorf("storage: %s contains a traversal sequence", name)
	}
	return value, nil
}
