// crater cache
package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/crater-build/crater/internal/cache"
	"github.com/crater-build/crater/internal/msg"
)

func openStore() *cache.Store {
	store, err := cache.Default()
	if err != nil {
		msg.Fatal("could not open download cache: %v", err)
	}
	return store
}

func doCacheList() {
	store := openStore()

	entries := store.Entries()
	urls := make([]string, 0, len(entries))
	for url := range entries {
		urls = append(urls, url)
	}
	sort.Strings(urls)

	for i, url := range urls {
		fmt.Printf("%d. %s -> %s\n", i+1, url, entries[url])
	}

	size, err := store.Size()
	if err != nil {
		msg.Fatal("could not measure cache: %v", err)
	}
	msg.Info("%d cached archives, %.1f MB", len(entries), float64(size)/1000000.0)
}

func doCacheRemove(url string) {
	store := openStore()

	removed, err := store.Remove(url)
	if err != nil {
		msg.Fatal("failed to remove %s: %v", url, err)
	}
	if !removed {
		msg.Warn("no cached archive for %s", url)
		return
	}
	msg.Info("removed cached archive for %s", url)
}

func doCacheClean() {
	store := openStore()
	if err := store.Clear(); err != nil {
		msg.Fatal("failed to clean cache: %v", err)
	}
	msg.Info("download cache cleaned")
}

func doCacheExport(url, dest string) {
	store := openStore()
	if err := store.Copy(dest, url); err != nil {
		msg.Fatal("failed to export %s: %v", url, err)
	}
	msg.Info("exported %s -> %s", url, dest)
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached source archives",
	Run: func(cmd *cobra.Command, args []string) {
		doCacheList()
	},
}

var cacheRemoveCmd = &cobra.Command{
	Use:   "remove <url>",
	Short: "Remove one cached archive",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		doCacheRemove(args[0])
	},
}

var cacheCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove every cached archive",
	Run: func(cmd *cobra.Command, args []string) {
		doCacheClean()
	},
}

var cacheExportCmd = &cobra.Command{
	Use:   "export <url> <dest>",
	Short: "Copy a cached archive to a path",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		doCacheExport(args[0], args[1])
	},
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the source archive download cache",
}

func init() {
	// crater cache subcommand
	cacheCmd.AddCommand(cacheListCmd)
	cacheCmd.AddCommand(cacheRemoveCmd)
	cacheCmd.AddCommand(cacheCleanCmd)
	cacheCmd.AddCommand(cacheExportCmd)
	rootCmd.AddCommand(cacheCmd)
}
