package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/fattura-reconcile/internal/cache"
	"github.com/Veraticus/fattura-reconcile/internal/cli"
	"github.com/Veraticus/fattura-reconcile/internal/common"
	"github.com/Veraticus/fattura-reconcile/internal/gateway"
	"github.com/Veraticus/fattura-reconcile/internal/model"
	"github.com/Veraticus/fattura-reconcile/internal/ofx"
)

func importCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import invoices and bank statements into the backend",
	}
	cmd.AddCommand(
		importInvoicesCmd(g),
		importTransactionsCmd(g),
		importOFXCmd(g),
		importValidateCmd(g),
		importReportCmd(g, "stats", "Show import statistics", (*gateway.Client).ImportStatistics),
		importReportCmd(g, "health", "Check the import subsystem", (*gateway.Client).ImportHealth),
	)
	return cmd
}

func printImport(a *app, res *gateway.ImportResult) error {
	return a.out.Render(res, func(w io.Writer) error {
		line := fmt.Sprintf("%d processed, %d imported, %d duplicates, %d errors", res.Processed, res.Success, res.Duplicates, res.Errors)
		if res.Unsupported > 0 {
			line += fmt.Sprintf(", %d unsupported", res.Unsupported)
		}
		switch {
		case res.Errors > 0:
			line = cli.FormatWarning(line)
		default:
			line = cli.FormatSuccess(line)
		}
		_, err := fmt.Fprintln(w, line)
		return err
	})
}

func importInvoicesCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "invoices FILE...",
		Short: "Import electronic invoices (XML, P7M or ZIP archives)",
		Long: `Import electronic invoices. ZIP archives are uploaded one at a time;
XML and P7M files are uploaded together.

Examples:
  recon import invoices fatture-2024.zip
  recon import invoices "inbox/*.xml"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := expandFiles(args)
			if err != nil {
				return err
			}
			var zips, docs []string
			for _, f := range files {
				switch strings.ToLower(filepath.Ext(f)) {
				case ".zip":
					zips = append(zips, f)
				case ".xml", ".p7m":
					docs = append(docs, f)
				default:
					return fmt.Errorf("%w: %s is not an XML, P7M or ZIP file", common.ErrInvalidConfig, f)
				}
			}

			return g.run(cmd, func(ctx context.Context, a *app) error {
				var results []*gateway.ImportResult
				for _, path := range zips {
					res, err := uploadOne(path, func(f gateway.File) (*gateway.ImportResult, error) {
						return a.gw.ImportInvoicesZIP(ctx, f)
					})
					if err != nil {
						return err
					}
					results = append(results, res)
				}
				if len(docs) > 0 {
					res, err := uploadMany(docs, func(fs []gateway.File) (*gateway.ImportResult, error) {
						return a.gw.ImportInvoicesXML(ctx, fs...)
					})
					if err != nil {
						return err
					}
					results = append(results, res)
				}

				a.cache.Invalidate(cache.Invoices)
				a.cache.Invalidate(cache.Anagraphics)
				return printImport(a, sumImports(results))
			})
		},
	}
}

func importTransactionsCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "transactions FILE",
		Short: "Import a bank statement CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.run(cmd, func(ctx context.Context, a *app) error {
				res, err := uploadOne(args[0], func(f gateway.File) (*gateway.ImportResult, error) {
					return a.gw.ImportTransactionsCSV(ctx, f)
				})
				if err != nil {
					return err
				}
				a.cache.Invalidate(cache.Transactions)
				return printImport(a, res)
			})
		},
	}
}

func importOFXCmd(g *globals) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "ofx FILE...",
		Short: "Convert OFX/QFX statements and import them as bank transactions",
		Long: `Parse OFX or QFX statements, drop transactions repeated across files, and
upload the result through the bank CSV import. With --dry-run the converted
CSV is written to standard output instead.

Examples:
  recon import ofx ~/Downloads/*.qfx
  recon import ofx estratto.ofx --dry-run > estratto.csv`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := expandFiles(args)
			if err != nil {
				return err
			}
			return g.run(cmd, func(ctx context.Context, a *app) error {
				transactions, err := parseOFXFiles(ctx, files)
				if err != nil {
					return err
				}
				if len(transactions) == 0 {
					return fmt.Errorf("%w: no transactions in %s", common.ErrNotFound, strings.Join(files, ", "))
				}

				var buf bytes.Buffer
				if err := ofx.WriteCSV(&buf, transactions); err != nil {
					return err
				}
				if dryRun {
					_, err := io.Copy(a.out.Writer(), &buf)
					return err
				}

				common.LogInfo("Uploading converted statement", common.Fields{
					"files":        len(files),
					"transactions": len(transactions),
				})
				res, err := a.gw.ImportTransactionsCSV(ctx, gateway.File{Name: "ofx-import.csv", Content: &buf})
				if err != nil {
					return err
				}
				a.cache.Invalidate(cache.Transactions)
				return printImport(a, res)
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the converted CSV instead of uploading it")
	return cmd
}

// parseOFXFiles parses every file and keeps the first occurrence of each
// transaction hash, ordered by date.
func parseOFXFiles(ctx context.Context, files []string) ([]model.BankTransaction, error) {
	parser := ofx.NewParser()
	seen := make(map[string]bool)
	var out []model.BankTransaction
	for _, path := range files {
		f, err := os.Open(path) //nolint:gosec // user-supplied statement
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", path, err)
		}
		txns, err := parser.ParseFile(ctx, f)
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}

		dupes := 0
		for _, txn := range txns {
			if seen[txn.UniqueHash] {
				dupes++
				continue
			}
			seen[txn.UniqueHash] = true
			out = append(out, txn)
		}
		common.LogDebug("Parsed statement", common.Fields{
			"file":         path,
			"transactions": len(txns),
			"duplicates":   dupes,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TransactionDate.Before(out[j].TransactionDate)
	})
	return out, nil
}

func importValidateCmd(g *globals) *cobra.Command {
	var dataType string
	cmd := &cobra.Command{
		Use:   "validate FILE",
		Short: "Check whether a ZIP or CSV file can be imported",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			zip := strings.EqualFold(filepath.Ext(path), ".zip")
			return g.run(cmd, func(ctx context.Context, a *app) error {
				f, closer, err := gateway.OpenFile(path)
				if err != nil {
					return err
				}
				defer func() { _ = closer.Close() }()

				var v *gateway.Validation
				if zip {
					v, err = a.gw.ValidateZIP(ctx, f)
				} else {
					v, err = a.gw.ValidateCSV(ctx, dataType, f)
				}
				if err != nil {
					return err
				}
				return a.out.Render(v, func(w io.Writer) error {
					line := cli.FormatSuccess(fmt.Sprintf("%s can be imported (%s)", filepath.Base(path), v.Status))
					if !v.CanImport {
						line = cli.FormatError(fmt.Sprintf("%s cannot be imported (%s)", filepath.Base(path), v.Status))
					}
					if _, err := fmt.Fprintln(w, line); err != nil {
						return err
					}
					for _, r := range v.Recommendations {
						if _, err := fmt.Fprintln(w, "  "+cli.FormatInfo(r)); err != nil {
							return err
						}
					}
					return nil
				})
			})
		},
	}
	cmd.Flags().StringVar(&dataType, "type", "transactions", "CSV content (transactions, invoices, anagraphics)")
	return cmd
}

func importReportCmd(g *globals, use, short string, fetch func(*gateway.Client, context.Context) (gateway.Report, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.run(cmd, func(ctx context.Context, a *app) error {
				r, err := fetch(a.gw, ctx)
				if err != nil {
					return err
				}
				return printReport(a, short, r)
			})
		},
	}
}

func uploadOne(path string, send func(gateway.File) (*gateway.ImportResult, error)) (*gateway.ImportResult, error) {
	f, closer, err := gateway.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = closer.Close() }()
	return send(f)
}

func uploadMany(paths []string, send func([]gateway.File) (*gateway.ImportResult, error)) (*gateway.ImportResult, error) {
	files := make([]gateway.File, 0, len(paths))
	closers := make([]io.Closer, 0, len(paths))
	defer func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}()
	for _, p := range paths {
		f, closer, err := gateway.OpenFile(p)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
		closers = append(closers, closer)
	}
	return send(files)
}

func sumImports(results []*gateway.ImportResult) *gateway.ImportResult {
	if len(results) == 1 {
		return results[0]
	}
	total := &gateway.ImportResult{}
	for _, r := range results {
		total.Processed += r.Processed
		total.Success += r.Success
		total.Duplicates += r.Duplicates
		total.Errors += r.Errors
		total.Unsupported += r.Unsupported
		total.Files = append(total.Files, r.Files...)
	}
	return total
}

var exportTypes = []string{"invoices", "transactions", "anagraphics"}

var exportExtensions = map[gateway.ExportFormat]string{
	gateway.ExportExcel: ".xlsx",
	gateway.ExportCSV:   ".csv",
	gateway.ExportJSON:  ".json",
}

func exportCmd(g *globals) *cobra.Command {
	var (
		format, from, to, kind, status, file string
		details                              bool
	)
	cmd := &cobra.Command{
		Use:   "export TYPE",
		Short: "Download invoices, transactions or anagraphics",
		Long: `Download a backend export. TYPE is invoices, transactions or anagraphics.
The file defaults to TYPE with the format's extension; "-" writes to standard
output.

Examples:
  recon export invoices --format excel --from 2024-01-01 --to 2024-12-31
  recon export transactions --format csv --file - | less`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: exportTypes,
		RunE: func(cmd *cobra.Command, args []string) error {
			dataType := args[0]
			if !slices.Contains(exportTypes, dataType) {
				return fmt.Errorf("%w: export type must be one of %s", common.ErrInvalidConfig, strings.Join(exportTypes, ", "))
			}
			fmtType := gateway.ExportFormat(format)
			ext, ok := exportExtensions[fmtType]
			if !ok {
				return fmt.Errorf("%w: export format must be excel, csv or json", common.ErrInvalidConfig)
			}
			for _, d := range []string{from, to} {
				if _, err := optionalDate(d); err != nil {
					return err
				}
			}
			if file == "" {
				file = dataType + ext
			}
			filter := gateway.ExportFilter{StartDate: from, EndDate: to, Type: kind, Status: status, IncludeDetails: details}

			return g.run(cmd, func(ctx context.Context, a *app) error {
				if file == "-" {
					_, err := a.gw.Export(ctx, dataType, fmtType, filter, a.out.Writer())
					return err
				}
				return exportToFile(a, file, func(w io.Writer) (int64, error) {
					return a.gw.Export(ctx, dataType, fmtType, filter, w)
				})
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", string(gateway.ExportExcel), "excel, csv or json")
	cmd.Flags().StringVar(&from, "from", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "end date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&kind, "type", "", "invoice or counterparty type")
	cmd.Flags().StringVar(&status, "status", "", "status filter, passed through to the backend")
	cmd.Flags().BoolVar(&details, "details", false, "include invoice lines and VAT summaries")
	cmd.Flags().StringVarP(&file, "file", "f", "", "output file, or - for standard output")
	return cmd
}

// exportToFile downloads into a temporary file next to path and renames it
// into place. A failed download leaves an existing file untouched.
func exportToFile(a *app, path string, write func(io.Writer) (int64, error)) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".recon-export-*")
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	n, werr := write(tmp)
	cerr := tmp.Close()
	if err := errors.Join(werr, cerr); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	return a.out.Render(map[string]any{"file": path, "bytes": n}, func(w io.Writer) error {
		_, err := fmt.Fprintln(w, cli.FormatSuccess(fmt.Sprintf("Exported %s (%d bytes)", path, n)))
		return err
	})
}
