package cmd

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"time"

	"github.com/tessiv/ereserve-dl/internal/browser"
	"github.com/tessiv/ereserve-dl/internal/config"
	"github.com/tessiv/ereserve-dl/internal/downloader"
	"github.com/tessiv/ereserve-dl/internal/ereserve"
	"github.com/tessiv/ereserve-dl/internal/pdf"
	"github.com/tessiv/ereserve-dl/internal/ui"
	"github.com/tessiv/ereserve-dl/internal/util"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
)

var (
	flagDownloads   string
	flagOutput      string
	flagScanTimeout time.Duration
	flagUserAgent   string
	flagChapters    string
)

func init() {
	downloadCmd := &cobra.Command{
		Use:   "download <book-id>",
		Short: "Download a book from the e-reserve platform and produce a PDF. Opens a browser for the login step",
		Args:  cobra.ExactArgs(1),
		RunE:  runDownload,
	}

	downloadCmd.Flags().StringVar(&flagDownloads, "downloads", "", "folder for the per-chapter page images")
	downloadCmd.Flags().StringVar(&flagOutput, "output", "", "output folder for the PDF")
	downloadCmd.Flags().DurationVar(&flagScanTimeout, "scan-timeout", 0, "deadline for the scan id discovery (e.g. 90s)")
	downloadCmd.Flags().StringVar(&flagUserAgent, "user-agent", "", "override User-Agent for the bridged HTTP client")
	downloadCmd.Flags().StringVar(&flagChapters, "chapters", "", "chapter selection: index, range (2-5), list (1,3,7) or name")

	rootCmd.AddCommand(downloadCmd)
}

func runDownload(cmd *cobra.Command, args []string) error {
	bookID := args[0]

	cfg, usedPath, err := config.LoadMerged(config.Options{
		IgnoreConfig: flagIgnoreConfig,
		Debug:        flagDebug,
		DownloadsDir: flagDownloads,
		OutputDir:    flagOutput,
		ScanTimeout:  flagScanTimeout,
		UserAgent:    flagUserAgent,
	})
	if err != nil {
		return err
	}

	logSvc := ui.NewLogger(cfg.Debug)
	if usedPath != "" {
		fmt.Printf("Config file: %s\n", usedPath)
	}

	ctx := context.Background()

	sess, err := browser.Launch(browser.SessionOptions{
		NavTimeout: cfg.NavTimeout,
		Log:        logSvc,
	})
	if err != nil {
		return err
	}
	defer sess.Close()
	util.SetupInterruptHandler(sess.Close)

	if err := sess.Navigate(ctx, cfg.EntryURL); err != nil {
		return err
	}

	// The one human-in-the-loop step: the run blocks here until the
	// operator confirms the login, not for a fixed duration.
	login := promptui.Prompt{
		Label: "Complete the login in the opened browser, then press Enter",
	}
	if _, err := login.Run(); err != nil {
		return fmt.Errorf("login confirmation cancelled")
	}

	escapedID := url.PathEscape(bookID)
	detailURL := fmt.Sprintf(cfg.DetailTemplate, escapedID)

	if err := sess.Navigate(ctx, detailURL); err != nil {
		return err
	}

	before, err := sess.ClickViewerButton(ctx, cfg.ClickSelector)
	if err != nil {
		return err
	}

	token, viewerURL, err := sess.DiscoverScanToken(ctx, cfg.TokenElemID, before, cfg.PollInterval, cfg.ScanTimeout)
	if err != nil {
		return err
	}
	logSvc.Debugf("scan id %q found on %s\n", token, viewerURL)

	viewerBookID, err := ereserve.ViewerBookID(viewerURL)
	if err != nil {
		return err
	}

	// Bridge the session before the first API call so an incomplete login
	// fails here, not halfway through the book.
	kernel, err := sess.CookieValue(cfg.ChaptersAPI, cfg.CookieName)
	if err != nil {
		return err
	}

	rawCookies, err := sess.AllCookies()
	if err != nil {
		return err
	}

	cookies := make([]util.BridgedCookie, 0, len(rawCookies))
	for _, c := range rawCookies {
		cookies = append(cookies, util.BridgedCookie{
			Name:   c.Name,
			Value:  c.Value,
			Domain: c.Domain,
			Path:   c.Path,
		})
	}

	client, err := util.NewBridgedClient(util.HTTPClientOptions{
		Timeout:     60 * time.Second,
		UserAgent:   util.PickUserAgent(cfg.UserAgent),
		Cookies:     cookies,
		DebugLogger: logSvc,
	})
	if err != nil {
		return err
	}

	title, err := ereserve.BookTitle(ctx, client, detailURL)
	if err != nil {
		logSvc.Debugf("book title not available (%v), using id\n", err)
		title = bookID
	}
	fmt.Printf("Book: %s\n\n", title)

	api := ereserve.NewClient(client, ereserve.ClientOptions{
		ChaptersAPI:    cfg.ChaptersAPI,
		ChapterAPI:     cfg.ChapterAPI,
		Kernel:         kernel,
		Referer:        viewerURL,
		AcceptLanguage: cfg.AcceptLanguage,
		Log:            logSvc,
	})

	chapterList, err := api.ChapterList(ctx, token)
	if err != nil {
		return err
	}
	fmt.Printf("Found %d chapters.\n", len(chapterList))

	if flagChapters != "" {
		chapterList = ereserve.FilterChapters(chapterList, flagChapters)
		if len(chapterList) == 0 {
			return fmt.Errorf("no chapters match selection %q", flagChapters)
		}
		fmt.Printf("Selected %d chapter(s).\n", len(chapterList))
	}
	fmt.Println()

	asm := pdf.NewAssembler(title)
	dl := downloader.New(client, downloader.Options{
		ImageAPI: cfg.ImageAPI,
		Referer:  viewerURL,
		BaseDir:  filepath.Join(cfg.DownloadsDir, escapedID),
		DPI:      cfg.ExportDPI,
		Log:      logSvc,
	})

	pm := ui.NewProgressManager()
	stats := &ui.Stats{}
	start := time.Now()

	err = dl.WalkBook(ctx, chapterList, downloader.WalkOptions{
		ViewerBookID: viewerBookID,
		Manifest:     api.PageManifest,
		Assembler:    asm,
		Register:     pm.Register,
		OnSkip: func(ch ereserve.Chapter) {
			logSvc.Errorf("No pages for %s, skipping\n", ch.DisplayName())
		},
		Stats: stats,
	})
	pm.Close()
	if err != nil {
		return err
	}

	sess.CloseExtraTabs()

	if asm.PageCount() == 0 {
		return fmt.Errorf("no pages downloaded for book %s", bookID)
	}

	outPath := filepath.Join(cfg.OutputDir, escapedID+".pdf")
	if err := asm.WriteFile(outPath); err != nil {
		return err
	}

	fmt.Println()
	fmt.Println("Download Summary:")
	fmt.Printf("Chapters: %d (skipped %d)\n", stats.TotalChapters.Load(), stats.SkippedChapters.Load())
	fmt.Printf("Pages:    %d\n", stats.TotalPages.Load())
	fmt.Printf("Data:     %s\n", util.Human(stats.TotalBytes.Load()))
	fmt.Printf("Time:     %s\n", time.Since(start).Round(time.Second))
	fmt.Printf("Output:   %s\n", outPath)

	return nil
}
