package internal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/beamline/internal/testutil"
)

func TestRetarget(t *testing.T) {
	dir := t.TempDir()
	doc := `<?xml version="1.0" encoding="UTF-8"?>
<Project><Directory>C:\old\jobs</Directory><Part><Directory>C:\old\parts</Directory></Part></Project>
`
	a := testutil.WriteFile(t, dir, "a.idstv", doc)
	if err := os.MkdirAll(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	b := testutil.WriteFile(t, filepath.Join(dir, "sub"), "b.IDSTV", "<Project><Name>x</Name></Project>")
	testutil.WriteFile(t, dir, "c.nc1", "<Directory>keep</Directory>")

	res, err := Retarget(dir, `D:\cnc\jobs`, testutil.Logger())
	if err != nil {
		t.Fatalf("retarget: %v", err)
	}
	if res.Files != 2 || res.Changed != 1 || res.Elements != 2 {
		t.Errorf("result = %+v", res)
	}

	got, _ := os.ReadFile(a)
	if strings.Contains(string(got), "old") || strings.Count(string(got), `<Directory>D:\cnc\jobs</Directory>`) != 2 {
		t.Errorf("a.idstv = %s", got)
	}
	unchanged, _ := os.ReadFile(b)
	if string(unchanged) != "<Project><Name>x</Name></Project>" {
		t.Errorf("b.IDSTV changed: %s", unchanged)
	}
	nc1, _ := os.ReadFile(filepath.Join(dir, "c.nc1"))
	if string(nc1) != "<Directory>keep</Directory>" {
		t.Error("records must not be touched")
	}
}

func TestRetargetLeavesUntouchedEncodings(t *testing.T) {
	dir := t.TempDir()
	bom := "\xef\xbb\xbf<Project><Name>x</Name></Project>"
	latin := "<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?><Project><Name>Tr\xe4ger</Name></Project>"
	a := testutil.WriteFile(t, dir, "bom.idstv", bom)
	b := testutil.WriteFile(t, dir, "latin.idstv", latin)

	res, err := Retarget(dir, `D:\cnc\jobs`, testutil.Logger())
	if err != nil {
		t.Fatalf("retarget: %v", err)
	}
	if res.Files != 2 || res.Changed != 0 || res.Elements != 0 {
		t.Errorf("result = %+v", res)
	}
	if got, _ := os.ReadFile(a); string(got) != bom {
		t.Errorf("bom.idstv rewritten: %q", got)
	}
	if got, _ := os.ReadFile(b); string(got) != latin {
		t.Errorf("latin.idstv rewritten: %q", got)
	}
}

func TestRetargetMissingDir(t *testing.T) {
	if _, err := Retarget(filepath.Join(t.TempDir(), "nope"), "x", testutil.Logger()); err == nil {
		t.Fatal("expected error for missing directory")
	}
}
