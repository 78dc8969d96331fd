// kml-cli is a small companion tool for the kmlstore service: it gzips
// KML files at the service's compression level and drives the CRUD API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"kmlstore/pkg/client"
	"kmlstore/pkg/kml"
	"kmlstore/pkg/log"
)

func main() {
	server := flag.String("server", "http://localhost:8080", "Base URL of the kmlstore service")
	id := flag.String("id", "", "Document ID (get, update, delete)")
	adminID := flag.String("admin-id", "", "Admin token (get-by-admin, update, delete)")
	file := flag.String("file", "", "KML file to upload or compress")
	author := flag.String("author", "", "Author recorded at creation")
	authorVersion := flag.String("author-version", "", "Author version")
	out := flag.String("out", "", "Output path for compress (default <file>.gz)")
	flag.Parse()

	if flag.NArg() != 1 {
		usage()
	}
	action := flag.Arg(0)

	api := client.New(*server)
	ctx := context.Background()

	switch action {
	case "compress":
		compressFile(*file, *out)
	case "create":
		record, err := api.Create(ctx, readFile(*file), *author, *authorVersion)
		exitOn(err, "create failed")
		printRecord(record)
	case "get":
		record, err := api.Get(ctx, *id)
		exitOn(err, "get failed")
		printRecord(record)
	case "get-by-admin":
		record, err := api.GetByAdminID(ctx, *adminID)
		exitOn(err, "get-by-admin failed")
		printRecord(record)
	case "update":
		record, err := api.Update(ctx, *id, *adminID, readFile(*file), *authorVersion)
		exitOn(err, "update failed")
		printRecord(record)
	case "delete":
		err := api.Delete(ctx, *id, *adminID)
		exitOn(err, "delete failed")
		fmt.Printf("deleted %s\n", *id)
	default:
		usage()
	}
}

func compressFile(path, out string) {
	data := readFile(path)
	gzipped, err := kml.Gzip(data)
	exitOn(err, "compress failed")

	if out == "" {
		out = strings.TrimSuffix(path, ".xml") + ".kml.gz"
	}
	exitOn(os.WriteFile(out, gzipped, 0o644), "write failed")
	fmt.Printf("compressed %s -> %s (%d -> %d bytes)\n", path, out, len(data), len(gzipped))
}

func readFile(path string) []byte {
	if path == "" {
		log.Fatal().Msg("-file is required for this action")
	}
	data, err := os.ReadFile(path)
	exitOn(err, "read failed")
	return data
}

func printRecord(record *client.Record) {
	fmt.Printf("id:             %s\n", record.ID)
	if record.AdminID != "" {
		fmt.Printf("admin_id:       %s\n", record.AdminID)
	}
	fmt.Printf("created:        %s\n", record.Created)
	fmt.Printf("updated:        %s\n", record.Updated)
	fmt.Printf("empty:          %t\n", record.Empty)
	fmt.Printf("author:         %s\n", record.Author)
	fmt.Printf("author_version: %s\n", record.AuthorVersion)
	fmt.Printf("self:           %s\n", record.Links.Self)
	fmt.Printf("kml:            %s\n", record.Links.KML)
}

func exitOn(err error, msg string) {
	if err != nil {
		log.Fatal().Err(err).Msg(msg)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: kml-cli [flags] compress|create|get|get-by-admin|update|delete")
	flag.PrintDefaults()
	os.Exit(2)
}
