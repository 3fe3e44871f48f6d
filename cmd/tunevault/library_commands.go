package main

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"tunevault/internal/config"
	"tunevault/internal/library"
)

func newFoldersCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "folders",
		Short: "List the folders in the library",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.libraryStore()
			if err != nil {
				return err
			}
			folders, err := store.ListFolders(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(folders) == 0 {
				fmt.Fprintln(out, "No folders yet")
				return nil
			}
			rows := make([][]string, 0, len(folders))
			for _, f := range folders {
				rows = append(rows, []string{f})
			}
			fmt.Fprintln(out, renderTable([]string{"Folder"}, rows, nil))
			return nil
		},
	}
}

func newSongsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "songs <folder>",
		Short: "List the songs stored in a folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.libraryStore()
			if err != nil {
				return err
			}
			songs, err := store.ListSongs(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), songsTable(songs))
			return nil
		},
	}
}

func (c *commandContext) libraryStore() (library.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.RequireSecrets(config.StorageKeys...); err != nil {
		return nil, err
	}
	return newS3Store(cfg)
}

func songsTable(songs []library.Song) string {
	rows := make([][]string, 0, len(songs))
	var total uint64
	for i, s := range songs {
		rows = append(rows, []string{strconv.Itoa(i + 1), s.Name(), humanize.Bytes(uint64(s.Size))})
		total += uint64(s.Size)
	}
	rows = append(rows, []string{"", fmt.Sprintf("%d songs", len(songs)), humanize.Bytes(total)})
	return renderTable(
		[]string{"#", "Song", "Size"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignRight},
	)
}
