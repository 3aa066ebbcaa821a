// SPDX-License-Identifier: MPL-2.0

package main

import cmd "github.com/perseusxr/magicopt/cmd/magicopt"

func main() {
	cmd.Execute()
}
