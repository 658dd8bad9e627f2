package main

import (
	"context"
	"encoding/json"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/joomcode/errorx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/joomcode/redisbulk/bulk"
	"github.com/joomcode/redisbulk/config"
	"github.com/joomcode/redisbulk/databases"
	"github.com/joomcode/redisbulk/keyspace"
)

const (
	adhocDatabase = "adhoc"
	cliOwner      = "cli"
)

var (
	cliErrors       = errorx.NewNamespace("cli")
	errUsage        = cliErrors.NewType("usage")
	errActionFailed = cliErrors.NewType("action_failed")
)

type runFlags struct {
	db         string
	addrs      []string
	cluster    bool
	masterName string
	dbIndex    int
	password   string
	kind       string
	match      string
	typ        string
	count      int
	ttl        time.Duration
	output     string
}

func runCmd(g *globalFlags) *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run single bulk action to completion",
		Long: `Run single bulk action and print its final snapshot.

Database is either taken from configuration by --db, or described by --addr:
one address for standalone server, seed addresses with --cluster,
sentinel addresses with --master-name. Ctrl-C aborts the action.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(g)
			if err != nil {
				return err
			}
			log, err := setupLogger(cfg.Log)
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			snap, err := runAction(ctx, cfg, f, log)
			if err != nil {
				return err
			}
			if err := writeSnapshot(cmd.OutOrStdout(), snap, f.output); err != nil {
				return err
			}
			if snap.Status == bulk.Failed {
				return errActionFailed.New("action %s failed: %s", snap.ID, snap.Error)
			}
			return nil
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.db, "db", "", "database id from configuration")
	fl.StringSliceVar(&f.addrs, "addr", nil, "server, cluster seed or sentinel address (repeatable)")
	fl.BoolVar(&f.cluster, "cluster", false, "addresses are cluster seeds")
	fl.StringVar(&f.masterName, "master-name", "", "sentinel master name")
	fl.IntVar(&f.dbIndex, "db-index", 0, "logical database number")
	fl.StringVar(&f.password, "password", "", "AUTH password")
	fl.StringVar(&f.kind, "kind", string(bulk.Delete), "action kind: delete, unlink, expire or persist")
	fl.StringVar(&f.match, "match", "", "SCAN MATCH pattern (required)")
	fl.StringVar(&f.typ, "type", "", "restrict to data type")
	fl.IntVar(&f.count, "count", keyspace.DefaultCount, "SCAN COUNT hint")
	fl.DurationVar(&f.ttl, "ttl", 0, "time to live for expire")
	fl.StringVar(&f.output, "output", "yaml", "final snapshot format: yaml or json")
	_ = cmd.MarkFlagRequired("match")
	return cmd
}

// database returns connection record described by flags.
func (f runFlags) database(cfg *config.Config) (databases.Config, error) {
	if f.db != "" {
		if len(f.addrs) != 0 {
			return databases.Config{}, errUsage.New("--db and --addr are mutually exclusive")
		}
		for _, d := range cfg.Databases {
			if d.ID == f.db {
				return d, nil
			}
		}
		return databases.Config{}, databases.ErrUnknownDatabase.New("database %s is not configured", f.db)
	}
	if len(f.addrs) == 0 {
		return databases.Config{}, errUsage.New("either --db or --addr is required")
	}
	d := databases.Config{
		ID:       adhocDatabase,
		Kind:     keyspace.Standalone.String(),
		Addrs:    f.addrs,
		DB:       f.dbIndex,
		Password: f.password,
	}
	switch {
	case f.cluster && f.masterName != "":
		return databases.Config{}, errUsage.New("--cluster and --master-name are mutually exclusive")
	case f.cluster:
		d.Kind = keyspace.Cluster.String()
	case f.masterName != "":
		d.Kind = keyspace.Sentinel.String()
		d.MasterName = f.masterName
	}
	return d, d.Validate()
}

func (f runFlags) descriptor(dbID string) (bulk.Descriptor, error) {
	kind, err := bulk.ParseKind(f.kind)
	if err != nil {
		return bulk.Descriptor{}, err
	}
	desc := bulk.Descriptor{
		DatabaseID: dbID,
		Kind:       kind,
		Filter:     keyspace.Filter{Match: f.match, Type: f.typ, Count: f.count},
		Params:     bulk.Params{TTL: f.ttl},
	}
	return desc, desc.Validate()
}

func runAction(ctx context.Context, cfg *config.Config, f runFlags, log *zap.Logger) (bulk.Snapshot, error) {
	dbCfg, err := f.database(cfg)
	if err != nil {
		return bulk.Snapshot{}, err
	}
	desc, err := f.descriptor(dbCfg.ID)
	if err != nil {
		return bulk.Snapshot{}, err
	}

	pool, err := databases.NewPool([]databases.Config{dbCfg}, log)
	if err != nil {
		return bulk.Snapshot{}, err
	}
	defer pool.Close()

	opts := cfg.Bulk.RegistryOpts()
	opts.Logger = log
	registry := bulk.NewRegistry(pool, bulk.SinkFunc(func(s bulk.Snapshot) {
		log.Info("progress",
			zap.String("action_id", s.ID),
			zap.String("status", string(s.Status)),
			zap.Int64("scanned", s.Overview.Scanned),
			zap.Int64("total", s.Overview.Total),
			zap.Int64("processed", s.Summary.Processed),
			zap.Int64("failed", s.Summary.Failed))
	}), opts)
	defer registry.Close()

	action, err := registry.AddAction(ctx, cliOwner, desc)
	if err != nil {
		return bulk.Snapshot{}, err
	}
	select {
	case <-action.Done():
	case <-ctx.Done():
		log.Warn("interrupted, aborting", zap.String("action_id", action.ID()))
		action.Abort()
		<-action.Done()
	}
	return action.Snapshot(), nil
}

func writeSnapshot(w io.Writer, s bulk.Snapshot, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	case "yaml", "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(s); err != nil {
			return err
		}
		return enc.Close()
	}
	return errUsage.New("unknown output format %q", format)
}
