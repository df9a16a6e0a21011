package mainfuncs

import (
	"github.com/schollz/progressbar/v3"

	"github.com/banachtech/stochvol/chain"
)

// loadChain resolves the chain a command works on, falling back to the
// bundled BTC chain when no file is given.
func loadChain(filename string) (chain.Chain, error) {
	if filename == "" {
		return chain.BTC(), nil
	}
	return chain.Load(filename)
}

// progress bar initialization
func progressBar(length int) *progressbar.ProgressBar {
	bar := progressbar.NewOptions(
		length,
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionUseANSICodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(20),
		progressbar.OptionSetVisibility(true),
		progressbar.OptionShowDescriptionAtLineEnd(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))
	return bar
}
