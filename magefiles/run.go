//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Extracts the sample illustration into sample/amiya.png.
func (Run) Sample() error {
	mg.Deps(Build.Sample)
	fmt.Println("Run portrait on the sample bundle...")
	if _, err := executeCmd("go", withArgs("run", ".", "-in", sampleBundlePath, "-codename", "amiya", "-out", "sample/amiya.png", "-debug"), withStream()); err != nil {
		return err
	}
	return nil
}
