package share

import "github.com/atotto/clipboard"

// SystemClipboard is the host clipboard. It needs xclip, xsel or
// wl-clipboard on Linux.
type SystemClipboard struct{}

func (SystemClipboard) Available() bool {
	return !clipboard.Unsupported
}

func (SystemClipboard) WriteText(text string) error {
	return clipboard.WriteAll(text)
}
