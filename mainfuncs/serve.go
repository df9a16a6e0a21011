package mainfuncs

import (
	"github.com/banachtech/stochvol/api"
	"github.com/banachtech/stochvol/pricer"
)

// Serve runs the pricing API on the given address.
func Serve(address string) error {
	server := api.NewServer(api.NewEngine(pricer.New()))
	return server.Start(address)
}
