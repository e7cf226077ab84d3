package store

import (
	_ "embed"
	"sync"

	"github.com/roach88/criteria/internal/schema"
)

//go:embed demo.yaml
var demoYAML []byte

var demoRegistry = sync.OnceValues(func() (*schema.Registry, error) {
	return schema.Parse(demoYAML)
})

// DemoRegistry describes the tables created by the demo schema.
//
// Panics if the embedded descriptor is invalid.
func DemoRegistry() *schema.Registry {
	reg, err := demoRegistry()
	if err != nil {
		panic("invalid demo registry: " + err.Error())
	}
	return reg
}
