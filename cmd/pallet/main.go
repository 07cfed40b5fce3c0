// Command pallet manages a searchable collection of JSON records.
//
// Records are stored in a bbolt file and indexed for full-text search. The
// indexed fields are declared in a YAML config file:
//
//	tree: books
//	fields:
//	  - name: title
//	    type: text
//	    default: true
//	  - name: rating
//	    type: u64
//	    indexed: true
//	    fast: true
//
// See pallet --help for a list of all commands.
package main

import (
	"fmt"
	"os"
)

func main() {
	a := newApp()
	err := newRootCmd(a).Execute()
	if cerr := a.close(); cerr != nil && err == nil {
		err = cerr
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	if err != nil {
		os.Exit(1)
	}
}
