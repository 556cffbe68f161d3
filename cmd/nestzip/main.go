// Command nestzip inspects resources inside nested ZIP-format containers.
//
// A resource is named by a locator such as
//
//	/opt/app.pkg!/BOOT-INF/lib/dep.jar!/META-INF/MANIFEST.MF
//
// Roots may be local paths, file: URLs or http(s) URLs served with range
// requests.
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/afero"
)

// version is set via -ldflags.
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := newRootCmd(afero.NewOsFs()).ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
