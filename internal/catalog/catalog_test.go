package catalog

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

const sampleConfig = `{
	"departments": [
		{
			"name": "support",
			"sip_uri": "sip:support@pbx.example.com"
		},
		{
			"name": "sales",
			"sip_uri": "sip:sales@pbx.example.com",
			"headers": [
				{"name": "X-Department", "value": "sales"},
				{"name": "X-Priority", "value": "high"}
			]
		}
	]
}`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "departments.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoaderLoadsDepartments(t *testing.T) {
	loader, err := New(writeConfig(t, sampleConfig), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	cat := loader.Snapshot()
	if got := cat.Names(); !reflect.DeepEqual(got, []string{"sales", "support"}) {
		t.Errorf("Names() = %v, want sorted [sales support]", got)
	}

	sales, ok := cat.Lookup("sales")
	if !ok {
		t.Fatal("sales department not found")
	}
	if sales.SIPURI != "sip:sales@pbx.example.com" {
		t.Errorf("sip_uri = %q", sales.SIPURI)
	}
	if len(sales.Headers) != 2 || sales.Headers[0].Name != "X-Department" {
		t.Errorf("headers = %+v", sales.Headers)
	}

	if _, ok := cat.Lookup("billing"); ok {
		t.Error("Lookup returned a department that is not configured")
	}
}

func TestLoaderEmptyPath(t *testing.T) {
	loader, err := New("", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !loader.Snapshot().Empty() {
		t.Error("empty path should yield an empty catalog")
	}
}

func TestLoaderRejectsInvalidDepartment(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing sip_uri", `{"departments":[{"name":"sales"}]}`},
		{"missing name", `{"departments":[{"sip_uri":"sip:x@y"}]}`},
		{"not json", `departments: [sales]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(writeConfig(t, tt.content), nil); err == nil {
				t.Error("New accepted invalid configuration")
			}
		})
	}
}

func TestLoaderMissingFile(t *testing.T) {
	if _, err := New(filepath.Join(t.TempDir(), "absent.json"), nil); err == nil {
		t.Error("New accepted a missing file")
	}
}

func TestLoaderReloadKeepsOldSnapshotOnError(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	loader, err := New(path, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	before := loader.Snapshot()

	if err := os.WriteFile(path, []byte(`{"departments":[{"name":"broken"}]}`), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	if err := loader.Reload(); err == nil {
		t.Fatal("Reload accepted invalid configuration")
	}

	if got := loader.Snapshot(); !reflect.DeepEqual(got.Names(), before.Names()) {
		t.Errorf("snapshot changed after failed reload: %v", got.Names())
	}
}

func TestSnapshotIsolation(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	loader, err := New(path, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	captured := loader.Snapshot()

	if err := os.WriteFile(path, []byte(`{"departments":[{"name":"billing","sip_uri":"sip:b@y"}]}`), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	if err := loader.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	// The earlier snapshot still sees the departments it was created with.
	if _, ok := captured.Lookup("sales"); !ok {
		t.Error("captured snapshot lost its departments after reload")
	}
	if _, ok := loader.Snapshot().Lookup("billing"); !ok {
		t.Error("new snapshot does not see the reloaded departments")
	}
}
