package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/zheng93775/house-keeper/internal/backup"
	"github.com/zheng93775/house-keeper/internal/docstore"
	"github.com/zheng93775/house-keeper/internal/models"
	"github.com/zheng93775/house-keeper/internal/server/handlers"
	"github.com/zheng93775/house-keeper/internal/storage"
	"gopkg.in/yaml.v3"
)

func (a *app) initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the data directory, server_config.json and empty collections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Initialized %s\n", a.store.Root())
			return nil
		},
	}
}

func (a *app) userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}
	var password string
	add := &cobra.Command{
		Use:   "add <username>",
		Short: "Create a user; the password is read from stdin unless --password is set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			pw, err := readPassword(cmd, password)
			if err != nil {
				return err
			}
			u, err := a.users.Create(args[0], pw)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created user %s (%s)\n", u.Username, u.ID)
			return nil
		},
	}
	add.Flags().StringVar(&password, "password", "", "password (insecure: visible in process list)")

	passwd := &cobra.Command{
		Use:   "passwd <username>",
		Short: "Set a user's password and end their session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			pw, err := readPassword(cmd, password)
			if err != nil {
				return err
			}
			if err := a.users.SetPassword(args[0], pw); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Password updated for %s\n", args[0])
			return nil
		},
	}
	passwd.Flags().StringVar(&password, "password", "", "password (insecure: visible in process list)")

	list := &cobra.Command{
		Use:   "list",
		Short: "List users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			users, err := a.users.List()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tUSERNAME")
			for _, u := range users {
				fmt.Fprintf(tw, "%s\t%s\n", u.ID, u.Username)
			}
			return tw.Flush()
		},
	}
	cmd.AddCommand(add, passwd, list)
	return cmd
}

// readPassword returns flagValue, or the first line of stdin.
func readPassword(cmd *cobra.Command, flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	pw := strings.TrimRight(line, "\r\n")
	if pw == "" {
		return "", errors.New("password is required")
	}
	return pw, nil
}

func (a *app) backupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Back up user.json, house.json and every house detail",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := backup.New(a.dataDir(), a.backupDir())
			if err != nil {
				return err
			}
			r, err := m.BackupAll()
			for _, rel := range r.Copied {
				fmt.Fprintf(cmd.OutOrStdout(), "copied  %s\n", rel)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d copied, %d up to date\n", len(r.Copied), len(r.Skipped))
			if a.v.GetBool(cfgKeyBackupGit) {
				archive, aerr := backup.OpenArchive(m.Dir(), "", "")
				if aerr != nil {
					return errors.Join(err, aerr)
				}
				if aerr := archive.Commit("backup "+time.Now().Format(time.DateTime), r.Files); aerr != nil {
					return errors.Join(err, aerr)
				}
			}
			return err
		},
	}
}

func (a *app) schemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "schema [doc...]",
		Short:     "Print the JSON Schema of on-disk documents (user, house, house-detail)",
		ValidArgs: sortedSchemaDocs(),
		Args:      cobra.OnlyValidArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				args = sortedSchemaDocs()
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			for _, doc := range args {
				if err := enc.Encode(handlers.SchemaDocs[doc]()); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func sortedSchemaDocs() []string {
	names := make([]string, 0, len(handlers.SchemaDocs))
	for n := range handlers.SchemaDocs {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// houseExport is the YAML layout of an exported house.
type houseExport struct {
	ID      string        `yaml:"id"`
	Name    string        `yaml:"name"`
	Creator string        `yaml:"creator"`
	Members []string      `yaml:"members,omitempty"`
	Version string        `yaml:"version"`
	Items   []models.Area `yaml:"items"`
}

func (a *app) exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <houseId>",
		Short: "Print a house and its area tree as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			h, err := a.houses.Get(args[0])
			if err != nil {
				return err
			}
			d, err := docstore.Read[models.HouseDetail](a.store, storage.DetailPath(h.ID))
			if err != nil {
				return err
			}
			d.Normalize()
			out := houseExport{ID: h.ID, Name: h.Name, Creator: h.Creator, Version: d.Version, Items: d.Items}
			for _, m := range h.Members {
				out.Members = append(out.Members, m.Username)
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(out); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}

func (a *app) gcImagesCmd() *cobra.Command {
	var grace time.Duration
	cmd := &cobra.Command{
		Use:   "gc-images",
		Short: "Delete uploaded images no house references",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			used, err := a.houses.ReferencedImages()
			if err != nil {
				return err
			}
			images := storage.NewImageService(a.store, a.cfg.Quotas.MaxImageBytes)
			removed, err := images.GC(used, grace)
			for _, n := range removed {
				fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", n)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d images removed\n", len(removed))
			return err
		},
	}
	cmd.Flags().DurationVar(&grace, "grace", 24*time.Hour, "keep unreferenced images younger than this")
	return cmd
}
