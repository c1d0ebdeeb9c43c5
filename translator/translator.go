// Package translator holds the process-wide shader translator. Creating it
// loads the ANGLE wasm module, so it is built once on first use.
package translator

import (
	"context"
	"sync"

	"github.com/richinsley/goshadermixer/logging"
	gst "github.com/richinsley/goshadertranslator"
)

var (
	once       sync.Once
	translator *gst.ShaderTranslator
	initErr    error
)

// Get returns the shared translator. It panics if the translator could not
// be created; call Init first to handle that error.
func Get() *gst.ShaderTranslator {
	if err := Init(context.Background()); err != nil {
		panic(err)
	}
	return translator
}

// Init creates the shared translator if needed.
func Init(ctx context.Context) error {
	once.Do(func() {
		translator, initErr = gst.NewShaderTranslator(ctx)
		if initErr != nil {
			logging.Logger().Error("shader translator unavailable", "err", initErr)
			return
		}
		logging.Logger().Debug("shader translator ready")
	})
	return initErr
}
