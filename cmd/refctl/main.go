package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/andreyvit/kvidx"
	"github.com/andreyvit/kvidx/referral"
)

var Version = "dev"

func init() {
	cobra.EnablePrefixMatching = true
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "refctl failed: %v\n", err)
		os.Exit(1)
	}
}

// app carries the flags and the handles withDB opens for one invocation.
type app struct {
	configPath string
	dbPath     string
	backend    string
	verbose    bool

	cfg       *Config
	logger    *slog.Logger
	logCloser io.Closer
	db        kvidx.Backend
	graph     *referral.Indexed
	registry  *prometheus.Registry
	metrics   *kvidx.Metrics
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "refctl",
		Short:         "Inspect and edit a referral graph stored in a Bolt or LevelDB file",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "path to a TOML config file")
	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "database path (overrides config)")
	root.PersistentFlags().StringVar(&a.backend, "backend", "", "storage backend: bolt or leveldb (overrides config)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log every store operation")

	root.AddCommand(
		a.withDB(newSetCmd(a)),
		a.withDB(newOfCmd(a)),
		a.withDB(newChainCmd(a)),
		a.withDB(newListCmd(a)),
		a.withDB(newReferredCmd(a)),
		a.withDB(newDumpCmd(a)),
		a.withDB(newStatsCmd(a)),
		newVersionCmd(),
	)
	return root
}

// withDB opens the configured database around the command's RunE.
func (a *app) withDB(cmd *cobra.Command) *cobra.Command {
	run := cmd.RunE
	cmd.RunE = func(cmd *cobra.Command, args []string) (err error) {
		if err := a.open(cmd.ErrOrStderr()); err != nil {
			a.close()
			return err
		}
		defer func() {
			if cerr := a.close(); err == nil {
				err = cerr
			}
		}()
		return run(cmd, args)
	}
	return cmd
}

func (a *app) open(stderr io.Writer) error {
	cfg, err := LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	if a.dbPath != "" {
		cfg.DB = a.dbPath
	}
	if a.backend != "" {
		cfg.Backend = a.backend
	}
	if a.verbose {
		cfg.Verbose = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	a.logger, a.logCloser, err = newLogger(cfg, stderr)
	if err != nil {
		return err
	}

	a.registry = prometheus.NewRegistry()
	a.metrics = kvidx.NewMetrics(a.registry, "refctl")
	opt := kvidx.Options{
		Logger:  a.logger,
		Verbose: cfg.Verbose,
		Metrics: a.metrics,
		Bucket:  cfg.Bucket,
	}

	switch cfg.Backend {
	case backendBolt:
		a.db, err = kvidx.OpenBolt(cfg.DB, opt)
	case backendLevelDB:
		a.db, err = kvidx.OpenLevel(cfg.DB, opt)
	}
	if err != nil {
		return err
	}
	a.graph = referral.NewIndexed(kvidx.FromOwned(cfg.Namespace), kvidx.FromOwned(cfg.IndexNamespace))
	a.logger.Debug("opened database", "backend", cfg.Backend, "path", cfg.DB)
	return nil
}

func (a *app) close() error {
	var err error
	if a.db != nil {
		err = a.db.Close()
		a.db = nil
	}
	if a.logCloser != nil {
		a.logCloser.Close()
		a.logCloser = nil
	}
	return err
}

func parseOrder(desc bool) kvidx.Order {
	if desc {
		return kvidx.Descending
	}
	return kvidx.Ascending
}

func newSetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set <referred> <referrer>",
		Short: "Record referrer as the parent of referred",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			referred, referrer := referral.Address(args[0]), referral.Address(args[1])
			err := a.db.Update(func(s kvidx.Store) error {
				return a.graph.SetRef(s, referred, referrer)
			})
			if err != nil {
				return err
			}
			a.logger.Info("referral set", "referred", referred, "referrer", referrer)
			return nil
		},
	}
}

func newOfCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "of <addr>",
		Short: "Print the direct referrer of addr",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.db.View(func(s kvidx.Store) error {
				ref, ok, err := a.graph.RefOf(s, referral.Address(args[0]))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "<none>")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), ref)
				return nil
			})
		},
	}
}

func newChainCmd(a *app) *cobra.Command {
	var depth int
	cmd := &cobra.Command{
		Use:   "chain <addr>",
		Short: "Print the ancestors of addr, nearest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.db.View(func(s kvidx.Store) error {
				chain, err := a.graph.RefChains(s, referral.Address(args[0]), depth)
				if err != nil {
					return err
				}
				printAddrs(cmd.OutOrStdout(), chain)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&depth, "depth", referral.DefaultDepth, "maximum number of ancestors")
	return cmd
}

type pageFlags struct {
	after string
	limit int
	desc  bool
}

func (pf *pageFlags) register(cmd *cobra.Command, defLimit int) {
	cmd.Flags().StringVar(&pf.after, "after", "", "resume after this address")
	cmd.Flags().IntVar(&pf.limit, "limit", defLimit, "maximum number of results")
	cmd.Flags().BoolVar(&pf.desc, "desc", false, "list in descending order")
}

func newListCmd(a *app) *cobra.Command {
	var pf pageFlags
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all referrals by referred address",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.db.View(func(s kvidx.Store) error {
				refs, err := a.graph.AllRef(s, referral.Address(pf.after), pf.limit, parseOrder(pf.desc))
				if err != nil {
					return err
				}
				for _, r := range refs {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", r.Referred, r.Referrer)
				}
				return nil
			})
		},
	}
	pf.register(cmd, referral.DefaultAllLimit)
	return cmd
}

func newReferredCmd(a *app) *cobra.Command {
	var pf pageFlags
	cmd := &cobra.Command{
		Use:   "referred <referrer>",
		Short: "List the addresses referred by referrer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.db.View(func(s kvidx.Store) error {
				addrs, err := a.graph.AllReferredOf(s, referral.Address(args[0]), referral.Address(pf.after), pf.limit, parseOrder(pf.desc))
				if err != nil {
					return err
				}
				printAddrs(cmd.OutOrStdout(), addrs)
				return nil
			})
		},
	}
	pf.register(cmd, referral.DefaultReferredLimit)
	return cmd
}

func newDumpCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "dump",
		Short: "Dump records and index entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.db.View(func(s kvidx.Store) error {
				out, err := a.graph.Collection().Dump(s, kvidx.DumpAll)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), out)
				return nil
			})
		},
	}
}

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print collection statistics and store traffic",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			err := a.db.View(func(s kvidx.Store) error {
				st, err := a.graph.Collection().Stats(s)
				if err != nil {
					return err
				}
				fp, err := a.graph.Collection().Fingerprint(s)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "rows\t%d\nindex_rows\t%d\ndata_size\t%d\nindex_size\t%d\nfingerprint\t%016x\n", st.Rows, st.IndexRows, st.DataSize, st.IndexSize, fp)
				return nil
			})
			if err != nil {
				return err
			}
			return printMetrics(w, a.registry)
		},
	}
}

func printMetrics(w io.Writer, reg *prometheus.Registry) error {
	families, err := reg.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			var labels []string
			for _, lp := range m.GetLabel() {
				labels = append(labels, lp.GetName()+"="+lp.GetValue())
			}
			var v float64
			if c := m.GetCounter(); c != nil {
				v = c.GetValue()
			}
			fmt.Fprintf(w, "%s{%s}\t%g\n", mf.GetName(), strings.Join(labels, ","), v)
		}
	}
	return nil
}

func printAddrs(w io.Writer, addrs []referral.Address) {
	for _, a := range addrs {
		fmt.Fprintln(w, a)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Prints out the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "refctl@%s\n", Version)
			return nil
		},
	}
}
