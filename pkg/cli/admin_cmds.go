package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"duck-warehouse/internal/app"
	internaldb "duck-warehouse/internal/db"
	"duck-warehouse/internal/domain"
	"duck-warehouse/internal/realm"
)

// === Realms ===

func newRealmsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "realms",
		Short: "List, describe and manage realm definitions",
	}
	cmd.AddCommand(newRealmsListCmd(opts))
	cmd.AddCommand(newRealmsDescribeCmd(opts))
	cmd.AddCommand(newRealmsImportCmd(opts))
	cmd.AddCommand(newRealmsExportCmd(opts))
	cmd.AddCommand(newRealmsDeleteCmd(opts))
	return cmd
}

func newRealmsListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured realms",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				names, err := a.Services.Analytics.Realms(ctx)
				if err != nil {
					return err
				}
				if names == nil {
					names = []string{}
				}
				return render(cmd, names, func(w io.Writer) error {
					_, err := fmt.Fprintln(w, strings.Join(names, "\n"))
					return err
				})
			})
		},
	}
}

func newRealmsDescribeCmd(opts *rootOptions) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "describe <realm>",
		Short: "Show the group-bys, statistics and raw columns of a realm",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				desc, err := a.Services.Analytics.Describe(ctx, args[0], all)
				if err != nil {
					return err
				}
				return render(cmd, desc, func(w io.Writer) error {
					rows := make([][]string, 0, len(desc.Dimensions))
					for _, d := range desc.Dimensions {
						rows = append(rows, []string{d.Name, d.Label, strings.Join(d.Statistics, ",")})
					}
					return printTable(w, []string{"GROUP BY", "LABEL", "STATISTICS"}, rows)
				})
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Include hidden group-bys")
	return cmd
}

func newRealmsImportCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Store a realm definition file in the metastore",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			cfg, err := realm.ParseConfig(os.DirFS(filepath.Dir(path)), filepath.Base(path))
			if err != nil {
				return err
			}
			// Build once so an invalid definition is never stored.
			if _, err := realm.New(*cfg, nil); err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				if err := a.Services.Realms.Save(ctx, *cfg); err != nil {
					return err
				}
				a.RealmCache.Invalidate(cfg.Name)
				return render(cmd, map[string]string{"imported": cfg.Name}, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "Imported realm %q\n", cfg.Name)
					return err
				})
			})
		},
	}
}

func newRealmsExportCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export <realm>",
		Short: "Print a realm definition as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				cfg, err := a.RealmSource.LoadRealm(ctx, args[0])
				if err != nil {
					return err
				}
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent(2)
				if err := enc.Encode(cfg); err != nil {
					return fmt.Errorf("encode realm %q: %w", args[0], err)
				}
				return enc.Close()
			})
		},
	}
}

func newRealmsDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <realm>",
		Short: "Remove a realm definition from the metastore",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				if err := a.Services.Realms.Delete(ctx, args[0]); err != nil {
					return err
				}
				a.RealmCache.Invalidate(args[0])
				return render(cmd, map[string]string{"deleted": args[0]}, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "Deleted realm %q\n", args[0])
					return err
				})
			})
		},
	}
}

// === Role restrictions ===

func newRolesCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roles",
		Short: "Manage role restrictions",
	}
	cmd.AddCommand(newRolesListCmd(opts))
	cmd.AddCommand(newRolesChangeCmd(opts, "add", "Restrict a role to one dimension value"))
	cmd.AddCommand(newRolesChangeCmd(opts, "remove", "Remove a role restriction"))
	return cmd
}

func newRolesListCmd(opts *rootOptions) *cobra.Command {
	var (
		realmName string
		page      domain.PageRequest
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the role restrictions of a realm",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				listed, err := a.Services.Roles.List(ctx, realmName, page)
				if err != nil {
					return err
				}
				out := map[string]any{
					"restrictions":    restrictionsJSON(listed.Items),
					"total":           listed.Total,
					"next_page_token": listed.NextPageToken,
				}
				return render(cmd, out, func(w io.Writer) error {
					rows := make([][]string, 0, len(listed.Items))
					for _, rr := range listed.Items {
						rows = append(rows, []string{rr.Role, rr.Dimension, rr.Value})
					}
					return printTable(w, []string{"ROLE", "DIMENSION", "VALUE"}, rows)
				})
			})
		},
	}
	cmd.Flags().StringVar(&realmName, "realm", "", "Realm (required)")
	cmd.Flags().IntVar(&page.MaxResults, "max-results", 0, "Page size")
	cmd.Flags().StringVar(&page.PageToken, "page-token", "", "Token of the page to fetch")
	markRequired(cmd, "realm")
	return cmd
}

func restrictionsJSON(rrs []domain.RoleRestriction) []map[string]string {
	out := make([]map[string]string, 0, len(rrs))
	for _, rr := range rrs {
		out = append(out, map[string]string{
			"role":      rr.Role,
			"realm":     rr.Realm,
			"dimension": rr.Dimension,
			"value":     rr.Value,
		})
	}
	return out
}

func newRolesChangeCmd(opts *rootOptions, verb, short string) *cobra.Command {
	var rr domain.RoleRestriction
	cmd := &cobra.Command{
		Use:     verb,
		Short:   short,
		Example: fmt.Sprintf(`  warehouse roles %s --role pi --realm Jobs --dimension person --value '${user.person_id}'`, verb),
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				var err error
				if verb == "add" {
					err = a.Services.Roles.Add(ctx, rr)
				} else {
					err = a.Services.Roles.Remove(ctx, rr)
				}
				if err != nil {
					return err
				}
				return render(cmd, restrictionsJSON([]domain.RoleRestriction{rr})[0], func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "%s: role %s on %s.%s = %s\n", verb, rr.Role, rr.Realm, rr.Dimension, rr.Value)
					return err
				})
			})
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&rr.Role, "role", "", "Role name (required)")
	fs.StringVar(&rr.Realm, "realm", "", "Realm (required)")
	fs.StringVar(&rr.Dimension, "dimension", "", "Dimension (required)")
	fs.StringVar(&rr.Value, "value", "", "Dimension id, or ${user.<attribute>} (required)")
	markRequired(cmd, "role", "realm", "dimension", "value")
	return cmd
}

// === Metastore and demo data ===

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending metastore migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			newLogger(cmd, cfg).Debug("migrating metastore", "path", cfg.MetaDBPath)
			writeDB, readDB, err := internaldb.OpenMetastore(cfg.MetaDBPath)
			if err != nil {
				return fmt.Errorf("open metastore: %w", err)
			}
			defer readDB.Close()  //nolint:errcheck
			defer writeDB.Close() //nolint:errcheck

			v, err := internaldb.SchemaVersion(writeDB)
			if err != nil {
				return err
			}
			return render(cmd, map[string]int64{"schema_version": v}, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Metastore at schema version %s\n", strconv.FormatInt(v, 10))
				return err
			})
		},
	}
}

func newSeedCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load the demo Jobs realm, data and role restrictions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				report, err := a.SeedDemo(ctx)
				if err != nil {
					return err
				}
				return render(cmd, report, func(w io.Writer) error {
					return printTable(w, []string{"WAREHOUSE", "REALM", "RESTRICTIONS"}, [][]string{{
						strconv.FormatBool(report.WarehouseSeeded),
						strconv.FormatBool(report.RealmSaved),
						strconv.Itoa(report.RestrictionsAdded),
					}})
				})
			})
		},
	}
}
