package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/helixml/filegraph/domain/kv"
)

func kvCmd(envFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kv",
		Short: "Inspect and edit the auxiliary key-value store",
		Long: `The key-value store holds caches, counters and settings. Namespaces:
cache, config, metadata, stats, session, feature.`,
	}

	var ttl time.Duration
	set := &cobra.Command{
		Use:   "set <namespace> <key> <value>",
		Short: "Set a value",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ns, err := kv.ParseNamespace(args[0])
			if err != nil {
				return err
			}
			return withKV(envFile, func(store kv.Store) error {
				return store.Set(cmd.Context(), ns, args[1], args[2], ttl)
			})
		},
	}
	set.Flags().DurationVar(&ttl, "ttl", 0, "Expire the key after this long")

	get := &cobra.Command{
		Use:   "get <namespace> <key>",
		Short: "Print a value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ns, err := kv.ParseNamespace(args[0])
			if err != nil {
				return err
			}
			return withKV(envFile, func(store kv.Store) error {
				v, ok, err := store.Get(cmd.Context(), ns, args[1])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("%s:%s not found", ns, args[1])
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), v)
				return err
			})
		},
	}

	del := &cobra.Command{
		Use:   "del <namespace> <key>...",
		Short: "Delete keys",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ns, err := kv.ParseNamespace(args[0])
			if err != nil {
				return err
			}
			return withKV(envFile, func(store kv.Store) error {
				n := 0
				for _, key := range args[1:] {
					deleted, err := store.Delete(cmd.Context(), ns, key)
					if err != nil {
						return err
					}
					if deleted {
						n++
					}
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "deleted %d\n", n)
				return err
			})
		},
	}

	keys := &cobra.Command{
		Use:   "keys <namespace> [pattern]",
		Short: "List keys matching a glob pattern",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ns, err := kv.ParseNamespace(args[0])
			if err != nil {
				return err
			}
			pattern := "*"
			if len(args) == 2 {
				pattern = args[1]
			}
			return withKV(envFile, func(store kv.Store) error {
				found, err := store.Keys(cmd.Context(), ns, pattern)
				if err != nil {
					return err
				}
				p := &printer{w: cmd.OutOrStdout()}
				for _, k := range found {
					p.printf("%s\n", k)
				}
				return p.err
			})
		},
	}

	info := &cobra.Command{
		Use:   "info",
		Short: "Print store statistics as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withKV(envFile, func(store kv.Store) error {
				i, err := store.Info(cmd.Context())
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(i)
			})
		},
	}

	flush := &cobra.Command{
		Use:   "flush [namespace]",
		Short: "Delete every key in a namespace, or all namespaces",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withKV(envFile, func(store kv.Store) (err error) {
				var n int64
				if len(args) == 0 {
					if n, err = store.FlushAll(cmd.Context()); err != nil {
						return err
					}
				} else {
					ns, err := kv.ParseNamespace(args[0])
					if err != nil {
						return err
					}
					if n, err = store.FlushNamespace(cmd.Context(), ns); err != nil {
						return err
					}
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "flushed %d\n", n)
				return err
			})
		},
	}

	cmd.AddCommand(set, get, del, keys, info, flush)
	return cmd
}

func withKV(envFile *string, fn func(kv.Store) error) error {
	client, _, closeClient, err := openClient(*envFile, os.Stderr)
	if err != nil {
		return err
	}
	defer closeClient()
	return fn(client.KV)
}
