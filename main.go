// Copyright 2026 The Visor Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/jcodagnone/visor/cmd"
)

var Version = "development"

func main() {
	cmd.Execute(Version)
}
