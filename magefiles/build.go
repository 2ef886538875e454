//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

// Builds the portrait binary into bin/.
func (Build) Binary() error {
	if _, err := executeCmd("go", withArgs("build", "-o", "bin/portrait", "."), withStream()); err != nil {
		return err
	}
	return nil
}

// Writes the sample bundle used by run:sample.
func (Build) Sample() error {
	return writeSampleBundle()
}

// Runs go vet and the test suite.
func Test() error {
	if _, err := executeCmd("go", withArgs("vet", "./..."), withStream()); err != nil {
		return err
	}
	if _, err := executeCmd("go", withArgs("test", "-race", "./..."), withStream()); err != nil {
		return err
	}
	return nil
}
