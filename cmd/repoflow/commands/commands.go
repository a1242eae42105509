package commands

import (
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/xerrors"

	"github.com/repoflow/repoflow/pkg/audit"
	"github.com/repoflow/repoflow/pkg/connector"
	"github.com/repoflow/repoflow/pkg/fileproc"
	"github.com/repoflow/repoflow/pkg/layout"
	"github.com/repoflow/repoflow/pkg/progress"
	"github.com/repoflow/repoflow/pkg/remote"
	"github.com/repoflow/repoflow/pkg/transfer"
)

type options struct {
	repoURL        string
	username       string
	password       string
	userAgent      string
	connectTimeout time.Duration
	requestTimeout time.Duration
	noResume       bool
	useCache       bool
	concurrency    int64
	auditDir       string
	quiet          bool
}

func NewRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "repoflow",
		Short:         "Transfer artifacts between a remote repository and the local filesystem",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.repoURL, "repo", "", "remote repository URL (http, https or dav)")
	root.PersistentFlags().StringVar(&opts.username, "username", "", "repository username")
	root.PersistentFlags().StringVar(&opts.password, "password", "", "repository password")
	root.PersistentFlags().StringVar(&opts.userAgent, "user-agent", "", "User-Agent header override")
	root.PersistentFlags().DurationVar(&opts.connectTimeout, "connect-timeout", 0, "connection timeout")
	root.PersistentFlags().DurationVar(&opts.requestTimeout, "request-timeout", 0, "per-request timeout")
	root.PersistentFlags().BoolVar(&opts.noResume, "no-resume", false, "never resume interrupted downloads")
	root.PersistentFlags().BoolVar(&opts.useCache, "use-cache", false, "permit intermediary caching")
	root.PersistentFlags().Int64Var(&opts.concurrency, "concurrency", 0, "max concurrent transfers")
	root.PersistentFlags().StringVar(&opts.auditDir, "audit-dir", "", "directory for the transfer audit journal")
	root.PersistentFlags().BoolVar(&opts.quiet, "quiet", false, "disable the progress bar")
	_ = root.MarkPersistentFlagRequired("repo")

	root.AddCommand(newGetCmd(opts), newPutCmd(opts), newExistsCmd(opts))
	return root
}

func newGetCmd(opts *options) *cobra.Command {
	var (
		dest       string
		policyName string
		isMetadata bool
	)
	cmd := &cobra.Command{
		Use:   "get coordinate...",
		Short: "Download artifacts with checksum verification",
		Long: `Download the given artifacts into --dest, laid out as a maven2
repository. Coordinates take the form group:artifact:version[:classifier[:extension]].`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			policy, err := parsePolicy(policyName)
			if err != nil {
				return err
			}

			c, listeners, err := buildConnector(opts)
			if err != nil {
				return err
			}
			defer c.Close()
			defer listeners.finish()

			lay := layout.Maven2{}
			var artifacts, metadata []*transfer.Download
			for _, arg := range args {
				path, err := coordinatePath(lay, arg, isMetadata)
				if err != nil {
					return err
				}
				d := &transfer.Download{
					Path:   path,
					File:   filepath.Join(dest, filepath.FromSlash(path)),
					Policy: policy,
				}
				if isMetadata {
					metadata = append(metadata, d)
				} else {
					artifacts = append(artifacts, d)
				}
			}

			if err := c.Get(cmd.Context(), artifacts, metadata); err != nil {
				return err
			}
			return report(append(artifacts, metadata...), nil)
		},
	}
	cmd.Flags().StringVar(&dest, "dest", ".", "destination directory")
	cmd.Flags().StringVar(&policyName, "policy", "strict", "checksum policy: strict, warn or ignore")
	cmd.Flags().BoolVar(&isMetadata, "metadata", false, "treat coordinates as repository metadata")
	return cmd
}

func newPutCmd(opts *options) *cobra.Command {
	var isMetadata bool
	cmd := &cobra.Command{
		Use:   "put coordinate=file...",
		Short: "Upload files with checksum sidecars",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, listeners, err := buildConnector(opts)
			if err != nil {
				return err
			}
			defer c.Close()
			defer listeners.finish()

			lay := layout.Maven2{}
			var artifacts, metadata []*transfer.Upload
			for _, arg := range args {
				coord, file, ok := strings.Cut(arg, "=")
				if !ok {
					return xerrors.Errorf("expected coordinate=file, got %q", arg)
				}
				path, err := coordinatePath(lay, coord, isMetadata)
				if err != nil {
					return err
				}
				u := &transfer.Upload{Path: path, File: file}
				if isMetadata {
					metadata = append(metadata, u)
				} else {
					artifacts = append(artifacts, u)
				}
			}

			if err := c.Put(cmd.Context(), artifacts, metadata); err != nil {
				return err
			}
			return report(nil, append(artifacts, metadata...))
		},
	}
	cmd.Flags().BoolVar(&isMetadata, "metadata", false, "treat coordinates as repository metadata")
	return cmd
}

func newExistsCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exists coordinate...",
		Short: "Probe for artifacts without downloading them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, listeners, err := buildConnector(opts)
			if err != nil {
				return err
			}
			defer c.Close()
			defer listeners.finish()

			lay := layout.Maven2{}
			var downloads []*transfer.Download
			for _, arg := range args {
				path, err := coordinatePath(lay, arg, false)
				if err != nil {
					return err
				}
				downloads = append(downloads, &transfer.Download{
					Path:           path,
					ExistenceCheck: true,
				})
			}

			if err := c.Get(cmd.Context(), downloads, nil); err != nil {
				return err
			}
			for _, d := range downloads {
				slog.Info("Existence check",
					slog.String("path", d.Path), slog.String("outcome", d.Outcome().String()))
			}
			return report(downloads, nil)
		},
	}
	return cmd
}

type listenerSet struct {
	progress *progress.Listener
	journal  *audit.Journal
}

func (l listenerSet) finish() {
	if l.progress != nil {
		l.progress.Finish()
	}
	if l.journal != nil {
		l.journal.Close()
	}
}

// fanout forwards each event to every configured listener.
type fanout []transfer.Listener

func (f fanout) Initiated(ev transfer.Event) {
	for _, l := range f {
		l.Initiated(ev)
	}
}

func (f fanout) Progressed(ev transfer.Event) {
	for _, l := range f {
		l.Progressed(ev)
	}
}

func (f fanout) Succeeded(ev transfer.Event) {
	for _, l := range f {
		l.Succeeded(ev)
	}
}

func (f fanout) Corrupted(ev transfer.Event) {
	for _, l := range f {
		l.Corrupted(ev)
	}
}

func (f fanout) Failed(ev transfer.Event) {
	for _, l := range f {
		l.Failed(ev)
	}
}

func buildConnector(opts *options) (*connector.Connector, listenerSet, error) {
	var set listenerSet
	var listeners fanout

	if !opts.quiet {
		set.progress = progress.NewListener()
		listeners = append(listeners, set.progress)
	}
	if opts.auditDir != "" {
		journal, err := audit.New(opts.auditDir)
		if err != nil {
			return nil, set, xerrors.Errorf("audit journal error: %w", err)
		}
		if err := journal.Init(); err != nil {
			return nil, set, xerrors.Errorf("audit journal init error: %w", err)
		}
		set.journal = journal
		listeners = append(listeners, journal)
	}

	endpoint := remote.New(opts.repoURL)
	if opts.username != "" {
		endpoint.Auth = &remote.Auth{Username: opts.username, Password: opts.password}
	}

	cfg := connector.SessionConfig{
		UserAgent:        opts.userAgent,
		ConnectTimeout:   opts.connectTimeout,
		RequestTimeout:   opts.requestTimeout,
		DisableResumable: opts.noResume,
		UseCache:         opts.useCache,
		Concurrency:      opts.concurrency,
	}
	if len(listeners) > 0 {
		cfg.Listener = listeners
	}

	c, err := connector.New(endpoint, cfg, fileproc.Default{}, slog.Default())
	if err != nil {
		return nil, set, err
	}
	return c, set, nil
}

// coordinatePath resolves one CLI coordinate to a repository path.
func coordinatePath(lay layout.Layout, coord string, isMetadata bool) (string, error) {
	parts := strings.Split(coord, ":")
	if len(parts) < 3 || len(parts) > 5 {
		return "", xerrors.Errorf("invalid coordinate %q: expected group:artifact:version[:classifier[:extension]]", coord)
	}
	if isMetadata {
		return lay.MetadataPath(layout.Metadata{
			GroupID:    parts[0],
			ArtifactID: parts[1],
			Version:    parts[2],
		}), nil
	}
	a := layout.Artifact{
		GroupID:    parts[0],
		ArtifactID: parts[1],
		Version:    parts[2],
	}
	if len(parts) > 3 {
		a.Classifier = parts[3]
	}
	if len(parts) > 4 {
		a.Extension = parts[4]
	}
	return lay.ArtifactPath(a), nil
}

// parsePolicy maps the --policy flag value to a checksum policy.
func parsePolicy(name string) (transfer.ChecksumPolicy, error) {
	switch strings.ToLower(name) {
	case "strict":
		return transfer.ChecksumStrict, nil
	case "warn":
		return transfer.ChecksumWarn, nil
	case "ignore":
		return transfer.ChecksumIgnore, nil
	}
	return 0, xerrors.Errorf("invalid checksum policy %q: expected strict, warn or ignore", name)
}

// report logs each descriptor that did not succeed and fails when any
// transfer did not succeed.
func report(downloads []*transfer.Download, uploads []*transfer.Upload) error {
	var failed int
	for _, d := range downloads {
		if d.Outcome() != transfer.OutcomeOK {
			failed++
			slog.Error("Transfer failed",
				slog.String("path", d.Path), slog.String("outcome", d.Outcome().String()),
				slog.Any("error", d.Err()))
		}
	}
	for _, u := range uploads {
		if u.Outcome() != transfer.OutcomeOK {
			failed++
			slog.Error("Transfer failed",
				slog.String("path", u.Path), slog.String("outcome", u.Outcome().String()),
				slog.Any("error", u.Err()))
		}
	}
	if failed > 0 {
		return xerrors.Errorf("%d transfer(s) failed", failed)
	}
	return nil
}
