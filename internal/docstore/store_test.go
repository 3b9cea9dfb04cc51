package docstore

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

type record struct {
	ID   string   `json:"id"`
	Name string   `json:"name"`
	Tags []string `json:"tags"`
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func TestStore(t *testing.T) {
	t.Run("RoundTrip", func(t *testing.T) {
		s := newTestStore(t)
		want := []record{{ID: "1", Name: "alpha", Tags: []string{"a"}}, {ID: "2", Name: "beta", Tags: []string{}}}
		if err := Write(s, "nested/dir/records.json", want); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
		got, err := Read[[]record](s, "nested/dir/records.json")
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("Read() = %+v, want %+v", got, want)
		}
	})

	t.Run("PrettyJSON", func(t *testing.T) {
		s := newTestStore(t)
		if err := s.WriteJSON("r.json", record{ID: "x", Name: "y", Tags: []string{}}); err != nil {
			t.Fatal(err)
		}
		data, err := os.ReadFile(filepath.Join(s.Root(), "r.json"))
		if err != nil {
			t.Fatal(err)
		}
		want := "{\n  \"id\": \"x\",\n  \"name\": \"y\",\n  \"tags\": []\n}"
		if string(data) != want {
			t.Errorf("file content = %q, want %q", data, want)
		}
	})

	t.Run("ReadNotFound", func(t *testing.T) {
		s := newTestStore(t)
		_, err := Read[record](s, "missing.json")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Read() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("ReadParseError", func(t *testing.T) {
		s := newTestStore(t)
		if err := os.WriteFile(filepath.Join(s.Root(), "bad.json"), []byte("{not json"), 0o600); err != nil {
			t.Fatal(err)
		}
		_, err := Read[record](s, "bad.json")
		var perr *ParseError
		if !errors.As(err, &perr) {
			t.Fatalf("Read() error = %v, want *ParseError", err)
		}
		if perr.Path != "bad.json" {
			t.Errorf("ParseError.Path = %q, want %q", perr.Path, "bad.json")
		}
	})

	t.Run("ShapeMismatch", func(t *testing.T) {
		s := newTestStore(t)
		if err := s.WriteJSON("obj.json", record{ID: "1"}); err != nil {
			t.Fatal(err)
		}
		_, err := Read[[]record](s, "obj.json")
		var perr *ParseError
		if !errors.As(err, &perr) {
			t.Errorf("Read() error = %v, want *ParseError", err)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		s := newTestStore(t)
		if err := s.WriteJSON("d.json", record{}); err != nil {
			t.Fatal(err)
		}
		if err := s.Delete("d.json"); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if ok, err := s.Exists("d.json"); err != nil || ok {
			t.Errorf("Exists() = %v, %v; want false, nil", ok, err)
		}
		err := s.Delete("d.json")
		var fserr *FSError
		if !errors.As(err, &fserr) {
			t.Fatalf("Delete() of missing file error = %v, want *FSError", err)
		}
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Delete() of missing file error = %v, want ErrNotFound match", err)
		}
	})

	t.Run("InvalidPath", func(t *testing.T) {
		s := newTestStore(t)
		for _, rel := range []string{"", ".", "..", "../escape.json", "a/../../escape.json", "/etc/passwd"} {
			if err := s.WriteJSON(rel, record{}); !errors.Is(err, ErrInvalidPath) {
				t.Errorf("WriteJSON(%q) error = %v, want ErrInvalidPath", rel, err)
			}
			if _, err := Read[record](s, rel); !errors.Is(err, ErrInvalidPath) {
				t.Errorf("Read(%q) error = %v, want ErrInvalidPath", rel, err)
			}
		}
		if _, err := os.Stat(filepath.Join(filepath.Dir(s.Root()), "escape.json")); err == nil {
			t.Error("file escaped the store root")
		}
	})

	t.Run("AbortBeforeRename", func(t *testing.T) {
		s := newTestStore(t)
		orig := record{ID: "1", Name: "original", Tags: []string{}}
		if err := s.WriteJSON("a.json", orig); err != nil {
			t.Fatal(err)
		}
		before, err := os.ReadFile(filepath.Join(s.Root(), "a.json"))
		if err != nil {
			t.Fatal(err)
		}

		errCrash := errors.New("simulated crash")
		old := beforeRename
		beforeRename = func(tmpPath, dstPath string) error {
			if _, err := os.Stat(tmpPath); err != nil {
				t.Errorf("temp file missing before rename: %v", err)
			}
			if filepath.Dir(tmpPath) != filepath.Dir(dstPath) {
				t.Errorf("temp file %s not in target directory %s", tmpPath, filepath.Dir(dstPath))
			}
			return errCrash
		}
		t.Cleanup(func() { beforeRename = old })

		err = s.WriteJSON("a.json", record{ID: "1", Name: "replacement"})
		if !errors.Is(err, errCrash) {
			t.Fatalf("WriteJSON() error = %v, want %v", err, errCrash)
		}
		after, err := os.ReadFile(filepath.Join(s.Root(), "a.json"))
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(before, after) {
			t.Errorf("target changed after aborted write:\nbefore %s\nafter  %s", before, after)
		}
		assertNoTemp(t, s.Root())
	})

	t.Run("WriteFile", func(t *testing.T) {
		s := newTestStore(t)
		n, err := s.WriteFile("images/x.png", strings.NewReader("12345"), 5)
		if err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
		if n != 5 {
			t.Errorf("WriteFile() n = %d, want 5", n)
		}
		f, err := s.Open("images/x.png")
		if err != nil {
			t.Fatal(err)
		}
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(f); err != nil {
			t.Fatal(err)
		}
		_ = f.Close()
		if buf.String() != "12345" {
			t.Errorf("content = %q, want %q", buf.String(), "12345")
		}

		if _, err := s.WriteFile("images/y.png", strings.NewReader("123456"), 5); !errors.Is(err, ErrTooLarge) {
			t.Errorf("WriteFile() error = %v, want ErrTooLarge", err)
		}
		if ok, _ := s.Exists("images/y.png"); ok {
			t.Error("oversized file was written")
		}
		assertNoTemp(t, filepath.Join(s.Root(), "images"))
	})

	t.Run("List", func(t *testing.T) {
		s := newTestStore(t)
		for _, name := range []string{"house/b.json", "house/a.json", "house/notes.txt"} {
			if err := s.WriteJSON(name, record{}); err != nil {
				t.Fatal(err)
			}
		}
		if err := os.WriteFile(filepath.Join(s.Root(), "house", ".c.json.123.tmp"), nil, 0o600); err != nil {
			t.Fatal(err)
		}
		if err := os.Mkdir(filepath.Join(s.Root(), "house", "sub.json"), 0o755); err != nil {
			t.Fatal(err)
		}
		got, err := s.List("house", ".json")
		if err != nil {
			t.Fatal(err)
		}
		want := []string{"a.json", "b.json"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("List() = %v, want %v", got, want)
		}
		got, err = s.List("nope", ".json")
		if err != nil || len(got) != 0 {
			t.Errorf("List() of missing dir = %v, %v; want empty, nil", got, err)
		}
	})

	t.Run("SharedDirectory", func(t *testing.T) {
		dir := t.TempDir()
		a, err := New(dir)
		if err != nil {
			t.Fatal(err)
		}
		b, err := New(dir)
		if err != nil {
			t.Fatal(err)
		}
		if err := a.WriteJSON("r.json", record{ID: "from-a"}); err != nil {
			t.Fatal(err)
		}
		got, err := Read[record](b, "r.json")
		if err != nil {
			t.Fatal(err)
		}
		if got.ID != "from-a" {
			t.Errorf("ID = %q, want %q", got.ID, "from-a")
		}
	})
}

func assertNoTemp(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), tmpSuffix) {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}
