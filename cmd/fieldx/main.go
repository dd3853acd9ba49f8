// fieldx extracts isosurfaces, slices, streamlines and particles from
// sampled fields, locally or replicated from a master to replicas.
package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	var err error
	switch command {
	case "run":
		err = cmdRun(args)
	case "extract", "x":
		err = cmdExtract(args)
	case "serve", "master":
		err = cmdServe(args)
	case "replica":
		err = cmdReplica(args)
	case "algorithms", "algs":
		err = cmdAlgorithms(args)
	case "config":
		err = cmdConfig(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`fieldx - incremental field extraction

Usage:
  fieldx <command> [options]

Commands:
  run         Run in the role set by cluster.role (standalone, master, replica)
  extract     Run an extraction locally and write an OBJ file
  serve       Run an extraction and broadcast it to replicas
  replica     Receive a broadcast extraction and write an OBJ file
  algorithms  List algorithms and their modes
  config      Print the effective configuration as YAML
              (config <file> writes it, config init saves it as the user default)

Common options:
  -config <file>     YAML configuration (default ./fieldx.yaml)
  -algorithm <name>  isosurface, slice, streamline or particles
  -isovalue <v>      Isovalue for isosurface
  -seed x,y,z        Start a seeded extraction at this point
  -scalar <name>     Analytic scalar field (x, y, z, sphere, torus, gyroid, saddle)
  -vector <name>     Analytic vector field (uniform, vortex, saddle, abc)
  -dims nx,ny[,nz]   Grid vertex counts
  -o <file>          Output OBJ file
  -debug             Debug logging

Examples:
  fieldx extract -scalar gyroid -isovalue 0 -o gyroid.obj
  fieldx extract -algorithm streamline -vector abc -seed 0.1,0.2,0.3 -o line.obj
  fieldx serve -listen :7400 -metrics :9400
  fieldx replica -addr ws://127.0.0.1:7400/stream -o copy.obj`)
}
