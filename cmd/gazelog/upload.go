package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teslashibe/gazelog/pkg/catalog"
	"github.com/teslashibe/gazelog/pkg/upload"
)

func uploadCmd(g *globals) *cobra.Command {
	var (
		to      string
		pending bool
	)

	cmd := &cobra.Command{
		Use:   "upload [file...]",
		Short: "Upload session logs to the configured destination",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && !pending {
				return fmt.Errorf("give one or more files, or --pending")
			}
			ctx := cmd.Context()

			dest, err := destination(ctx, g.cfg.Upload, to)
			if err != nil {
				return err
			}
			if dest == nil {
				return fmt.Errorf("no upload destination configured (set GAZELOG_UPLOAD_ENDPOINT or GAZELOG_UPLOAD_DRIVE_FOLDER_ID)")
			}

			cat := openCatalog(g.cfg)
			if cat != nil {
				defer cat.Close()
			}

			paths := make([]string, 0, len(args))
			for _, a := range args {
				abs, err := filepath.Abs(a)
				if err != nil {
					return err
				}
				paths = append(paths, abs)
			}
			if pending {
				if cat == nil {
					return fmt.Errorf("--pending needs the session catalog")
				}
				entries, err := cat.Pending(ctx)
				if err != nil {
					return err
				}
				for _, e := range entries {
					paths = append(paths, e.Path)
				}
			}

			return uploadAll(ctx, cmd, dest, cat, paths)
		},
	}

	cmd.Flags().StringVar(&to, "to", "", "destination: http or drive (default: whichever is configured)")
	cmd.Flags().BoolVar(&pending, "pending", false, "upload every catalogued session not yet uploaded")
	cmd.AddCommand(loginCmd(g))
	return cmd
}

func uploadAll(ctx context.Context, cmd *cobra.Command, dest upload.Destination, cat *catalog.Catalog, paths []string) error {
	p := startUploads(dest, cat)
	defer p.close()

	failed := 0
	for _, path := range paths {
		res := <-p.worker.Submit(path, dest)
		if res.OK() {
			fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", filepath.Base(path), res.Location)
			continue
		}
		failed++
		fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", filepath.Base(path), res.Err)
		if ctx.Err() != nil {
			break
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d uploads failed", failed, len(paths))
	}
	return nil
}

func loginCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Authorize Google Drive uploads and save the token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := g.cfg.Upload
			if cfg.DriveCredentialsPath == "" {
				return fmt.Errorf("set upload.drive_credentials_path to the OAuth client JSON")
			}
			oauthCfg, err := upload.OAuthConfig(cfg.DriveCredentialsPath)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Open this URL and paste the authorization code:\n\n%s\n\ncode: ", upload.AuthURL(oauthCfg))
			code, err := bufio.NewReader(os.Stdin).ReadString('\n')
			if err != nil {
				return fmt.Errorf("read code: %w", err)
			}
			if err := upload.Login(cmd.Context(), oauthCfg, strings.TrimSpace(code), cfg.DriveTokenPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved token to %s\n", cfg.DriveTokenPath)
			return nil
		},
	}
}
