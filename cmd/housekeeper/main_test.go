package main

import (
	"flag"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestLoadDotEnv(t *testing.T) {
	t.Run("Missing", func(t *testing.T) {
		env, err := loadDotEnv(t.TempDir())
		if err != nil || len(env) != 0 {
			t.Fatalf("loadDotEnv() = %v, %v; want empty", env, err)
		}
	})

	t.Run("Parse", func(t *testing.T) {
		dir := t.TempDir()
		content := "# comment\n\nHTTP=:9090\nHOUSE_KEEPER_BACKUP_GIT=true\nSTATIC_DIR=\"/srv/web dir\"\ninvalid line\n"
		if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
		env, err := loadDotEnv(dir)
		if err != nil {
			t.Fatal(err)
		}
		want := map[string]string{"HTTP": ":9090", "BACKUP_GIT": "true", "STATIC_DIR": "/srv/web dir"}
		if !reflect.DeepEqual(env, want) {
			t.Errorf("loadDotEnv() = %v, want %v", env, want)
		}
	})

	t.Run("SingleQuotes", func(t *testing.T) {
		for _, line := range []string{"A='x'", "A='x"} {
			dir := t.TempDir()
			if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(line+"\n"), 0o600); err != nil {
				t.Fatal(err)
			}
			if _, err := loadDotEnv(dir); err == nil {
				t.Errorf("loadDotEnv(%q) succeeded, want error", line)
			}
		}
	})
}

func TestApplyEnv(t *testing.T) {
	newFlags := func() (*flag.FlagSet, *string, *string, *string, *bool) {
		fs := flag.NewFlagSet("housekeeper", flag.ContinueOnError)
		httpAddr := fs.String("http", "localhost:8080", "")
		fs.String("data-dir", "./data", "")
		backupDir := fs.String("backup-dir", "", "")
		staticDir := fs.String("static-dir", "", "")
		backupGit := fs.Bool("backup-git", false, "")
		return fs, httpAddr, backupDir, staticDir, backupGit
	}

	t.Run("LegacyNames", func(t *testing.T) {
		fs, httpAddr, backupDir, staticDir, backupGit := newFlags()
		env := map[string]string{
			"PORT":        "3030",
			"BACKUP_PATH": "/var/backup",
			"STATIC_PATH": "/srv/web",
			"BACKUP_GIT":  "true",
		}
		if err := applyEnv(fs, map[string]bool{}, func(k string) string { return env[k] }); err != nil {
			t.Fatal(err)
		}
		if *httpAddr != "0.0.0.0:3030" {
			t.Errorf("http = %q, want 0.0.0.0:3030", *httpAddr)
		}
		if *backupDir != "/var/backup" || *staticDir != "/srv/web" || !*backupGit {
			t.Errorf("got backup-dir=%q static-dir=%q backup-git=%v", *backupDir, *staticDir, *backupGit)
		}
	})

	t.Run("CurrentNamesWin", func(t *testing.T) {
		fs, httpAddr, backupDir, _, _ := newFlags()
		env := map[string]string{
			"HTTP":        ":9090",
			"PORT":        "3030",
			"BACKUP_DIR":  "/new",
			"BACKUP_PATH": "/old",
		}
		if err := applyEnv(fs, map[string]bool{}, func(k string) string { return env[k] }); err != nil {
			t.Fatal(err)
		}
		if *httpAddr != ":9090" || *backupDir != "/new" {
			t.Errorf("got http=%q backup-dir=%q", *httpAddr, *backupDir)
		}
	})

	t.Run("CommandLineWins", func(t *testing.T) {
		fs, httpAddr, _, _, _ := newFlags()
		if err := fs.Parse([]string{"-http", "localhost:1234"}); err != nil {
			t.Fatal(err)
		}
		set := map[string]bool{"http": true}
		env := map[string]string{"PORT": "3030", "HTTP": ":9090"}
		if err := applyEnv(fs, set, func(k string) string { return env[k] }); err != nil {
			t.Fatal(err)
		}
		if *httpAddr != "localhost:1234" {
			t.Errorf("http = %q, want localhost:1234", *httpAddr)
		}
	})

	t.Run("DataDirSkipped", func(t *testing.T) {
		fs, _, _, _, _ := newFlags()
		env := map[string]string{"STORAGE_PATH": "/elsewhere", "DATA_DIR": "/elsewhere"}
		if err := applyEnv(fs, map[string]bool{}, func(k string) string { return env[k] }); err != nil {
			t.Fatal(err)
		}
		if got := fs.Lookup("data-dir").Value.String(); got != "./data" {
			t.Errorf("data-dir = %q, want ./data", got)
		}
		if got := envValue("data-dir", func(k string) string { return env[k] }); got != "/elsewhere" {
			t.Errorf("envValue(data-dir) = %q", got)
		}
		if got := envValue("data-dir", func(k string) string {
			return map[string]string{"STORAGE_PATH": "/legacy"}[k]
		}); got != "/legacy" {
			t.Errorf("envValue(data-dir) via STORAGE_PATH = %q, want /legacy", got)
		}
	})

	t.Run("Invalid", func(t *testing.T) {
		fs, _, _, _, _ := newFlags()
		env := map[string]string{"BACKUP_GIT": "maybe"}
		if err := applyEnv(fs, map[string]bool{}, func(k string) string { return env[k] }); err == nil {
			t.Fatal("applyEnv() succeeded, want error")
		}
	})
}
