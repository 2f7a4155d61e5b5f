package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/drewdru/ponyTown-sub010/internal/config"
	"github.com/drewdru/ponyTown-sub010/internal/model"
	"github.com/drewdru/ponyTown-sub010/internal/replica"
)

// InspectOptions holds flags for the inspect command.
type InspectOptions struct {
	*RootOptions
	Backend    BackendOptions
	ConfigPath string
}

// AccountReport is everything the replica knows about one account.
type AccountReport struct {
	Account      model.AccountView     `json:"account"`
	Characters   []model.CharacterView `json:"characters"`
	Auths        []model.AuthView      `json:"auths"`
	Origins      []model.OriginView    `json:"origins"`
	SameDevice   []string              `json:"sameDevice,omitempty"`
	SameEmail    []string              `json:"sameEmail,omitempty"`
	ReferencedBy []string              `json:"referencedBy,omitempty"`
}

// WriteText implements TextWriter.
func (r *AccountReport) WriteText(w io.Writer) error {
	var b strings.Builder
	a := r.Account

	fmt.Fprintf(&b, "Account %s (%s)\n", a.ID, a.Name)
	fmt.Fprintf(&b, "  Emails:     %s\n", orNone(strings.Join(a.Emails, ", ")))
	fmt.Fprintf(&b, "  Device:     %s\n", orNone(a.BrowserID))
	fmt.Fprintf(&b, "  Flags:      %s\n", orNone(strings.Join(flagNames(a.Flags), ", ")))
	fmt.Fprintf(&b, "  Created:    %s\n", formatTime(a.CreatedAt))
	fmt.Fprintf(&b, "  Last visit: %s\n", formatTime(a.LastVisit))

	fmt.Fprintf(&b, "Characters (%d):\n", len(r.Characters))
	for _, c := range r.Characters {
		fmt.Fprintf(&b, "  %s  %s", c.ID, c.Name)
		if c.Tag != "" {
			fmt.Fprintf(&b, " [%s]", c.Tag)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Auths (%d):\n", len(r.Auths))
	for _, au := range r.Auths {
		fmt.Fprintf(&b, "  %s  %s", au.ID, au.Provider)
		if au.Name != "" {
			fmt.Fprintf(&b, " %s", au.Name)
		}
		if au.Disabled {
			b.WriteString(" (disabled)")
		}
		if au.Banned {
			b.WriteString(" (banned)")
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Origins (%d):\n", len(r.Origins))
	for _, o := range r.Origins {
		fmt.Fprintf(&b, "  %s  %s  last %s\n", o.IP, o.Country, formatTime(o.Last))
	}

	fmt.Fprintf(&b, "Same device:   %s\n", orNone(strings.Join(r.SameDevice, ", ")))
	fmt.Fprintf(&b, "Same email:    %s\n", orNone(strings.Join(r.SameEmail, ", ")))
	fmt.Fprintf(&b, "Referenced by: %s\n", orNone(strings.Join(r.ReferencedBy, ", ")))

	_, err := io.WriteString(w, b.String())
	return err
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InspectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "inspect <account-id>",
		Short: "Print the mirrored view of one account",
		Long: `Load the replica once and print an account with its characters, login
providers and origins, plus the accounts linked to it through the indices.

Example:
  ponyreplica inspect --db ./pony.db 0190a5c4-7b1e-7d2c-9a6f-2f1c3e4d5a6b
  ponyreplica inspect --db ./pony.db --format json 0190a5c4-7b1e-7d2c-9a6f-2f1c3e4d5a6b`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(opts, args[0], cmd)
		},
	}

	opts.Backend.addFlags(cmd)
	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "path to YAML config file")

	return cmd
}

func runInspect(opts *InspectOptions, accountID string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := opts.formatter(cmd)

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeConfig, "failed to load config", err, nil)
	}

	be, err := openBackend(ctx, opts.Backend)
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeStore, "failed to open store", err, nil)
	}
	defer be.Close()

	ropts := cfg.ReplicaOptions()
	ropts.Logger = newLogger(os.Stderr, opts.Verbose)
	// Load reads every character anyway.
	ropts.LazyChildren = false
	rep := replica.New(be.sources, ropts)
	if err := rep.Load(ctx); err != nil {
		return WrapExitError(ExitFailure, "failed to load replica", err)
	}

	report := buildReport(rep, accountID)
	if report == nil {
		return out.Fail(ExitFailure, ErrCodeNotFound, "account not found: "+accountID, nil, accountID)
	}
	return out.Success(report)
}

// buildReport reads the relations through their subscriptions, the same
// views a remote subscriber would receive. Returns nil for an unknown
// account.
func buildReport(rep *replica.Replica, accountID string) *AccountReport {
	acc := rep.Account(accountID)
	if acc == nil {
		return nil
	}
	r := &AccountReport{Account: model.CleanAccount(acc)}

	unsub := rep.SubscribeCharacters(acc.ID, func(v []model.CharacterView) { r.Characters = v })
	unsub()
	unsub = rep.SubscribeAuths(acc.ID, func(v []model.AuthView) { r.Auths = v })
	unsub()
	unsub = rep.SubscribeOrigins(acc.ID, func(v []model.OriginView) { r.Origins = v })
	unsub()

	r.SameDevice = otherIDs(rep.AccountsByDevice(acc.BrowserID), acc.ID)
	for _, email := range acc.Emails {
		r.SameEmail = append(r.SameEmail, otherIDs(rep.AccountsByEmail(email), acc.ID)...)
	}
	r.SameEmail = dedupe(r.SameEmail)
	r.ReferencedBy = otherIDs(rep.AccountsReferencing(acc.ID), acc.ID)
	return r
}

func otherIDs(accounts []*model.Account, self string) []string {
	var out []string
	for _, a := range accounts {
		if a.ID != self {
			out = append(out, a.ID)
		}
	}
	return out
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func flagNames(f model.AccountFlags) []string {
	var names []string
	if f.Has(model.FlagNoAutoMerge) {
		names = append(names, "no-auto-merge")
	}
	if f.Has(model.FlagMerged) {
		names = append(names, "merged")
	}
	if f.Has(model.FlagSuspicious) {
		names = append(names, "suspicious")
	}
	return names
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.UTC().Format(time.RFC3339)
}

func orNone(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
