package line

import "testing"

func TestSchemaFor(t *testing.T) {
	cases := []struct {
		docType string
		want    string
	}{
		{"legal", "legal"},
		{"Legal", "legal"},
		{" LEGAL ", "legal"},
		{"utility", "utility"},
		{"", "utility"},
		{"invoice", "utility"},
	}
	for _, c := range cases {
		if got := SchemaFor(c.docType); got.Name != c.want {
			t.Errorf("SchemaFor(%q) = %q, want %q", c.docType, got.Name, c.want)
		}
	}
}

func TestSchemaDescriptionIndex(t *testing.T) {
	// the pipe-salvage rule rejoins spilled fields at the description
	// column, so the index must point there on both schemas
	if Utility.Columns[Utility.DescriptionIndex] != FieldLineItemDesc {
		t.Errorf("utility description index points at %q", Utility.Columns[Utility.DescriptionIndex])
	}
	if Legal.Columns[Legal.DescriptionIndex] != FieldLineItemDesc {
		t.Errorf("legal description index points at %q", Legal.Columns[Legal.DescriptionIndex])
	}
	if Utility.Len() != 30 || Legal.Len() != 11 {
		t.Errorf("schema widths = %d/%d", Utility.Len(), Legal.Len())
	}
}
