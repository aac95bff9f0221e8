package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/miretskiy/blobsource/bloblog"
)

func main() {
	// Define flags
	path := flag.String("path", "", "Path to a blob file (required)")
	verify := flag.Bool("verify", false, "Verify the checksum of every record")
	flag.Parse()

	// Validate required flags
	if *path == "" {
		fmt.Fprintln(os.Stderr, "Error: --path is required")
		flag.Usage()
		os.Exit(1)
	}

	raw, err := os.ReadFile(*path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if len(raw) < bloblog.HeaderSize+bloblog.FooterSize {
		fmt.Fprintf(os.Stderr, "Error: file too small (%d bytes)\n", len(raw))
		os.Exit(1)
	}

	header, err := bloblog.DecodeHeader(raw[:bloblog.HeaderSize])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: bad header: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Header: column family %d, compression %s, ttl %v\n",
		header.ColumnFamilyID, header.Compression, header.HasTTL)

	footer, err := bloblog.DecodeFooter(raw[len(raw)-bloblog.FooterSize:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: bad footer: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Footer: %d records\n", footer.RecordCount)

	// Walk the records between header and footer.
	var count, corrupt uint64
	offset := uint64(bloblog.HeaderSize)
	end := uint64(len(raw) - bloblog.FooterSize)
	for offset < end {
		if offset+bloblog.RecordHeaderSize > end {
			fmt.Fprintf(os.Stderr, "Error: truncated record header at offset %d\n", offset)
			os.Exit(1)
		}
		rh, err := bloblog.DecodeRecordHeader(raw[offset : offset+bloblog.RecordHeaderSize])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: bad record header at offset %d: %v\n", offset, err)
			os.Exit(1)
		}
		recordEnd := offset + bloblog.RecordSize(rh.KeyLen, rh.ValueLen)
		if recordEnd > end {
			fmt.Fprintf(os.Stderr, "Error: record at offset %d overruns the footer\n", offset)
			os.Exit(1)
		}
		if *verify {
			key := raw[offset+bloblog.RecordHeaderSize : offset+bloblog.RecordHeaderSize+rh.KeyLen]
			value := raw[offset+bloblog.RecordHeaderSize+rh.KeyLen : recordEnd]
			if bloblog.BlobCRC(key, value) != rh.BlobCRC {
				fmt.Printf("  record %d at offset %d: CHECKSUM MISMATCH (key %q)\n", count, offset, key)
				corrupt++
			}
		}
		count++
		offset = recordEnd
	}

	fmt.Printf("Scanned %d records\n", count)
	if count != footer.RecordCount {
		fmt.Fprintf(os.Stderr, "Error: footer claims %d records, found %d\n", footer.RecordCount, count)
		os.Exit(1)
	}
	if corrupt > 0 {
		fmt.Fprintf(os.Stderr, "Error: %d corrupt records\n", corrupt)
		os.Exit(1)
	}
}
