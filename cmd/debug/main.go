// Command debug inspects and resets the persisted parameter database.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/minbiocabanon/pepettebox/internal/model"
	"github.com/minbiocabanon/pepettebox/internal/store"
)

func main() {
	var (
		dbFile = flag.String("db-file", "data/pepettebox.db", "Path to the parameter database")
		reset  = flag.Bool("reset", false, "Overwrite stored parameters with defaults")
	)
	flag.Parse()

	st, err := store.Open(*dbFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open store: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	if *reset {
		if err := st.Save(model.DefaultParams()); err != nil {
			fmt.Fprintf(os.Stderr, "reset params: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Parameters reset to defaults")
	}

	params, err := st.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load params: %v\n", err)
		os.Exit(1)
	}

	out, err := json.MarshalIndent(params, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "encode params: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}
