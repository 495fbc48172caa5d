// Copyright © 2024 Mutker Telag <witty.text5011@fastmail.com>
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "argon1d: %v\n", err)
		os.Exit(1)
	}
}
