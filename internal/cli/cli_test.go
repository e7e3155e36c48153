package cli

import (
	"testing"

	"toh-translator/internal/config"
)

func TestContainerArgs(t *testing.T) {
	tests := []struct {
		args           []string
		n              int
		header, detail string
		rest           int
	}{
		{[]string{"m.b", "out"}, 1, "m.b", "", 1},
		{[]string{"m.b", "m.dat", "out"}, 1, "m.b", "m.dat", 1},
		{[]string{"m.b", "dir", "new"}, 2, "m.b", "", 2},
		{[]string{"m.b", "m.dat", "dir", "new"}, 2, "m.b", "m.dat", 2},
	}
	for _, tt := range tests {
		header, detail, rest := containerArgs(tt.args, tt.n)
		if header != tt.header || detail != tt.detail || len(rest) != tt.rest {
			t.Fatalf("containerArgs(%q) = %q, %q, %q", tt.args, header, detail, rest)
		}
	}
}

func TestSelectMenu(t *testing.T) {
	project := &config.Project{Menu: []config.MenuFile{
		{FriendlyName: "Arm9", FilePath: "arm9.bin"},
		{FriendlyName: "Items", FilePath: "items.bin"},
	}}

	all, err := selectMenu(project, nil)
	if err != nil || len(all) != 2 {
		t.Fatalf("selectMenu(nil) = %d files, %v; want 2", len(all), err)
	}
	one, err := selectMenu(project, []string{"Items"})
	if err != nil || len(one) != 1 || one[0].FilePath != "items.bin" {
		t.Fatalf("selectMenu(Items) = %+v, %v", one, err)
	}
	if _, err := selectMenu(project, []string{"Nope"}); err == nil {
		t.Fatal("selectMenu accepted an unknown name")
	}
}
