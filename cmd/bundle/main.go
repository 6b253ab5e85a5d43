// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"github.com/devblok/gpures/assets"
)

var (
	version  = flag.Int64("version", 1, "Bundle version number to create it with")
	list     = flag.String("l", "", "List the entries of the given bundle")
	compress = flag.String("c", "", "Compress the given file/folder")
	dstFile  = flag.String("f", "assets.bundle", "Destination file")
	silent   = flag.Bool("s", false, "Silent")
)

func main() {
	flag.Parse()
	if *silent {
		log.SetLevel(log.WarnLevel)
	}

	if *list != "" && *compress != "" {
		log.Fatal(errors.New("only one operation at a time"))
	}

	switch {
	case *list != "":
		if err := listEntries(*list); err != nil {
			log.Fatal(err)
		}
	case *compress != "":
		if err := compressFiles(*compress, *dstFile); err != nil {
			log.Fatal(err)
		}
	default:
		flag.PrintDefaults()
	}
}

func listEntries(path string) error {
	b, err := assets.OpenFile(path)
	if err != nil {
		return err
	}
	defer b.Close()
	for _, name := range b.Names() {
		e, _ := b.Entry(name)
		fmt.Printf("%s\t%d\t%d\n", name, e.Size, e.CompressedSize)
	}
	return nil
}

// compressFiles adds every regular file under root, named by its path
// relative to root with forward slashes.
func compressFiles(root, dst string) error {
	if _, err := os.Stat(dst); err == nil {
		return errors.New("destination file exists, will not overwrite")
	}

	builder := assets.NewBuilder(*version)
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		name, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if name == "." {
			name = filepath.Base(path)
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := builder.Add(filepath.ToSlash(name), f); err != nil {
			return err
		}
		log.WithFields(log.Fields{
			"entry": filepath.ToSlash(name),
			"size":  info.Size(),
		}).Info("added")
		return nil
	})
	if err != nil {
		return err
	}

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	n, err := builder.WriteTo(out)
	if err != nil {
		out.Close()
		return err
	}
	log.WithFields(log.Fields{
		"bundle":  dst,
		"entries": builder.Len(),
		"bytes":   n,
	}).Info("bundle written")
	return out.Close()
}
