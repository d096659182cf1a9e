package fscache

import (
	"context"
	"fmt"
)

// Touch implements the TOUCH action of §4.E: refresh the remote mtime.
// Entirely skipped, not merely a no-op, when enable_touch is false — no
// action id, no audit row, no span.
func (c *Client) Touch(ctx context.Context, share Share, path, peer string) error {
	if !c.cfg.EnableTouch || !c.cfg.EnableWriteThrough {
		return nil
	}
	return c.do(ctx, KindTouch, share.String(), path, peer, func(ctx context.Context) error {
		return c.touch(ctx, path)
	})
}

func (c *Client) touch(ctx context.Context, path string) error {
	if err := c.files.TouchFile(ctx, path); err != nil {
		return fmt.Errorf("fscache: TOUCH %q: %w", path, err)
	}
	return nil
}
