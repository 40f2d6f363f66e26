package main

import (
	"embed"
	"fmt"
	"strings"
)

//go:embed contracts/*.clar
var contractSources embed.FS

// deployable lists the contracts deploy-contract accepts.
var deployable = []string{"send-many", "send-many-memo", "memo-expected"}

func contractSource(name string) (string, error) {
	for _, d := range deployable {
		if d == name {
			b, err := contractSources.ReadFile("contracts/" + name + ".clar")
			if err != nil {
				return "", err
			}
			return string(b), nil
		}
	}
	return "", fmt.Errorf("invalid contract %s, expected one of %s", name, strings.Join(deployable, ", "))
}
