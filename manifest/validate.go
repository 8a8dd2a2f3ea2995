package manifest

import (
	_ "embed"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

//go:embed schema.cue
var schemaSource string

// A cue.Context is not safe for concurrent use.
var (
	schemaMu   sync.Mutex
	schemaOnce sync.Once
	schemaCtx  *cue.Context
	schemaDef  cue.Value
	schemaErr  error
)

func loadSchema() {
	schemaCtx = cuecontext.New()
	v := schemaCtx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := v.Err(); err != nil {
		schemaErr = fmt.Errorf("compiling manifest schema: %w", err)
		return
	}
	schemaDef = v.LookupPath(cue.ParsePath("#Manifest"))
	schemaErr = schemaDef.Err()
}

// Validate checks the manifest against the embedded CUE schema and the
// constraints CUE cannot express.
func (m *Manifest) Validate() error {
	schemaMu.Lock()
	schemaOnce.Do(loadSchema)
	err := schemaErr
	if err == nil {
		v := schemaDef.Unify(schemaCtx.Encode(m))
		err = v.Validate(cue.Concrete(true))
	}
	schemaMu.Unlock()
	if err != nil {
		return err
	}

	if _, err := m.RunTimeout(); err != nil {
		return err
	}
	return nil
}
