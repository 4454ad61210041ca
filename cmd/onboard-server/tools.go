package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/onboard/onboard/internal/config"
	"github.com/onboard/onboard/internal/domain/assessment"
	"github.com/onboard/onboard/internal/domain/catalog"
	"github.com/onboard/onboard/internal/domain/pathway"
	"github.com/onboard/onboard/internal/platform/auth"
)

func catalogCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect questionnaire catalogs",
	}
	cmd.PersistentFlags().StringVar(&dir, "dir", "", "catalog directory (defaults to CATALOG_DIR)")

	resolveDir := func() string {
		if dir != "" {
			return dir
		}
		if cfg, err := config.Load(); err == nil {
			return cfg.CatalogDir
		}
		return ""
	}

	// catalog validate
	cmd.AddCommand(&cobra.Command{
		Use:   "validate [file...]",
		Short: "Validate catalog files, or every loaded catalog when no file is given",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) == 0 {
				p := catalog.NewFSProvider(resolveDir(), "")
				versions, err := p.Versions(cmd.Context())
				if err != nil {
					return err
				}
				for _, v := range versions {
					fmt.Fprintf(out, "ok  %s\n", v)
				}
				return nil
			}

			failed := 0
			for _, name := range args {
				c, err := catalog.LoadFile(name)
				if err != nil {
					failed++
					fmt.Fprintf(out, "FAIL %s: %v\n", name, err)
					continue
				}
				fmt.Fprintf(out, "ok  %s (version %s)\n", name, c.Version)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d catalog(s) invalid", failed, len(args))
			}
			return nil
		},
	})

	// catalog list
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List loaded catalog versions",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p := catalog.NewFSProvider(resolveDir(), "")
			versions, err := p.Versions(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-12s %-8s %-10s %s\n", "VERSION", "DOMAINS", "QUESTIONS", "WORKFLOWS")
			fmt.Fprintln(out, "------------ -------- ---------- ---------")
			for _, v := range versions {
				c, err := p.Get(ctx, v)
				if err != nil {
					return err
				}
				questions := c.Triage.QuestionCount()
				for i := range c.Domains {
					questions += c.Domains[i].QuestionCount()
				}
				fmt.Fprintf(out, "%-12s %-8d %-10d %d\n", c.Version, len(c.Domains), questions, len(c.Workflows))
			}
			return nil
		},
	})

	return cmd
}

// replayInput is the file format read by the replay command. YAML files are
// accepted with the same keys.
type replayInput struct {
	SessionID      string              `json:"session_id"`
	UserID         string              `json:"user_id"`
	CatalogVersion string              `json:"catalog_version"`
	Channel        string              `json:"channel"`
	StartedAt      time.Time           `json:"started_at"`
	PreRoute       bool                `json:"pre_route"`
	Profile        pathway.Profile     `json:"profile"`
	Answers        []assessment.Answer `json:"answers"`
}

func readReplayInput(filename string) (*replayInput, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == ".yaml" || ext == ".yml" {
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode %s: %w", filename, err)
		}
		if data, err = json.Marshal(doc); err != nil {
			return nil, fmt.Errorf("decode %s: %w", filename, err)
		}
	}
	var in replayInput
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filename, err)
	}
	return &in, nil
}

func replayCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "replay <answers-file>",
		Short: "Rebuild an assessment from an ordered answer list and print its outcome",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			in, err := readReplayInput(args[0])
			if err != nil {
				return err
			}

			p := catalog.NewFSProvider(dir, "")
			var cat *catalog.Catalog
			if in.CatalogVersion != "" {
				cat, err = p.Get(ctx, in.CatalogVersion)
			} else {
				cat, err = p.Latest(ctx)
			}
			if err != nil {
				return err
			}

			if in.SessionID == "" {
				in.SessionID = uuid.NewString()
			}
			if in.UserID == "" {
				in.UserID = in.Profile.UserID
			}
			if in.StartedAt.IsZero() {
				in.StartedAt = time.Now().UTC()
			}
			now := func() time.Time { return in.StartedAt }
			sc := pathway.Context{Now: in.StartedAt, Channel: in.Channel}
			sel := pathway.NewSelector(cat)

			cfg := assessment.Config{
				SessionID: in.SessionID,
				UserID:    in.UserID,
				Chooser:   sel.Chooser(in.Profile, sc),
				Now:       now,
				StartedAt: in.StartedAt,
			}
			if in.PreRoute {
				w, err := sel.PreRoute(in.Profile, sc)
				if err != nil {
					return err
				}
				cfg.Questionnaire = w.Questionnaire
			}

			sess, err := assessment.Replay(cat, cfg, in.Answers)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if res := sess.Result(); res != nil {
				return enc.Encode(res)
			}
			return enc.Encode(sess.Snapshot())
		},
	}
	cmd.Flags().StringVar(&dir, "catalog-dir", "", "directory of additional catalog files")
	return cmd
}

func tokenCmd() *cobra.Command {
	var (
		subject string
		roles   []string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed access token using AUTH_SIGNING_KEY",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.AuthSigningKey == "" {
				return fmt.Errorf("AUTH_SIGNING_KEY is required")
			}
			tok, err := auth.IssueToken(jwtConfig(cfg), subject, roles, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "user id carried in the sub claim")
	cmd.Flags().StringSliceVar(&roles, "role", []string{auth.RolePatient}, "role to grant (repeatable)")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
