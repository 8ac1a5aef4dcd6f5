package storage

import "testing"

func TestBuildProductImagePath(t *testing.T) {
	path, err := BuildObjectPath(PurposeProductImage, PathParams{
		ProductID: "prd_123",
		UploadID:  "01J0ABC",
		FileName:  "front.png",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := "catalog/products/prd_123/images/01J0ABC/front.png"
	if path != expected {
		t.Fatalf("expected %s, got %s", expected, path)
	}
	if !BelongsToProduct("prd_123", path) {
		t.Fatalf("expected path to belong to product")
	}
}

func TestBuildCategoryImagePath(t *testing.T) {
	path, err := BuildObjectPath(PurposeCategoryImage, PathParams{
		CategoryID: "cat_9",
		UploadID:   "u1",
		FileName:   "banner.jpg",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "catalog/categories/cat_9/u1/banner.jpg" {
		t.Fatalf("unexpected path %s", path)
	}
}

func TestBuildObjectPathRejectsInvalidSegment(t *testing.T) {
	_, err := BuildObjectPath(PurposeProductImage, PathParams{
		ProductID: "../bad",
		UploadID:  "upload",
		FileName:  "file.png",
	})
	if err == nil {
		t.Fatalf("expected error for invalid segment")
	}
}

func TestBelongsToProductRejectsForeignPaths(t *testing.T) {
	cases := []string{
		"",
		"catalog/products/prd_other/images/u/file.png",
		"catalog/products/prd_1/images/../../prd_2/images/x.png",
		"catalog/products/prd_1/images//x.png",
	}
	for _, candidate := range cases {
		if BelongsToProduct("prd_1", candidate) {
			t.Fatalf("expected %q to be rejected", candidate)
		}
	}
}
