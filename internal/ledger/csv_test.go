package ledger_test

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/receipt-genie/internal/ledger"
)

func readRows(path string) [][]string {
	f, err := os.Open(path)
	Expect(err).NotTo(HaveOccurred())
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	Expect(err).NotTo(HaveOccurred())
	return rows
}

var _ = Describe("CSVLedger", func() {
	var (
		ctx   context.Context
		path  string
		usage *ledger.CSVLedger
		entry ledger.Entry
	)

	BeforeEach(func() {
		ctx = context.Background()
		path = filepath.Join(GinkgoT().TempDir(), "logs", "usage_log.csv")
		var err error
		usage, err = ledger.NewCSVLedger(path)
		Expect(err).NotTo(HaveOccurred())
		entry = ledger.Entry{
			Timestamp:    time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
			ImagePath:    "receipt.jpg",
			InputTokens:  1000,
			OutputTokens: 1000,
			TotalCost:    0.02,
			ImageHash:    "abc123",
		}
	})

	Describe("Append", func() {
		var err error

		JustBeforeEach(func() {
			err = usage.Append(ctx, entry)
		})

		When("the file does not exist yet", func() {
			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("writes the header and the row", func() {
				Expect(readRows(path)).To(Equal([][]string{
					ledger.Header,
					{"2024-01-15T10:30:00Z", "receipt.jpg", "1000", "1000", "0.0200", "abc123"},
				}))
			})
		})

		When("the file already has rows", func() {
			BeforeEach(func() {
				Expect(usage.Append(ctx, ledger.Entry{ImageHash: "first"})).To(Succeed())
			})

			It("appends without repeating the header", func() {
				rows := readRows(path)
				Expect(rows).To(HaveLen(3))
				Expect(rows[0]).To(Equal(ledger.Header))
				Expect(rows[2][5]).To(Equal("abc123"))
			})
		})

		When("the file exists but is empty", func() {
			BeforeEach(func() {
				Expect(os.WriteFile(path, nil, 0644)).To(Succeed())
			})

			It("writes the header", func() {
				Expect(readRows(path)[0]).To(Equal(ledger.Header))
			})
		})

		When("the context is cancelled", func() {
			BeforeEach(func() {
				cancelled, cancel := context.WithCancel(context.Background())
				cancel()
				ctx = cancelled
			})

			It("returns the context error without writing", func() {
				Expect(err).To(MatchError(context.Canceled))
				Expect(path).NotTo(BeAnExistingFile())
			})
		})
	})

	Describe("concurrent appends", func() {
		It("never interleaves rows", func() {
			const writers = 20
			var wg sync.WaitGroup
			for i := 0; i < writers; i++ {
				wg.Add(1)
				go func(i int) {
					defer GinkgoRecover()
					defer wg.Done()
					// separate instances exercise the file lock as well as the mutex
					l, err := ledger.NewCSVLedger(path)
					Expect(err).NotTo(HaveOccurred())
					Expect(l.Append(ctx, ledger.Entry{ImagePath: strings.Repeat("x", 512), ImageHash: fmt.Sprintf("hash-%02d", i)})).To(Succeed())
				}(i)
			}
			wg.Wait()

			rows := readRows(path)
			Expect(rows).To(HaveLen(writers + 1))
			for _, row := range rows[1:] {
				Expect(row).To(HaveLen(len(ledger.Header)))
			}

			set, err := usage.Fingerprints(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(set).To(HaveLen(writers))
		})
	})

	Describe("Fingerprints", func() {
		var (
			set ledger.FingerprintSet
			err error
		)

		JustBeforeEach(func() {
			set, err = usage.Fingerprints(ctx)
		})

		When("the file does not exist", func() {
			It("returns an empty set without a warning", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(set).NotTo(BeNil())
				Expect(set).To(BeEmpty())
			})
		})

		When("the file is empty", func() {
			BeforeEach(func() {
				Expect(os.WriteFile(path, nil, 0644)).To(Succeed())
			})

			It("returns an empty set without a warning", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(set).To(BeEmpty())
			})
		})

		When("the file has only a header", func() {
			BeforeEach(func() {
				Expect(os.WriteFile(path, []byte(strings.Join(ledger.Header, ",")+"\n"), 0644)).To(Succeed())
			})

			It("returns an empty set without a warning", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(set).To(BeEmpty())
			})
		})

		When("rows have been appended", func() {
			BeforeEach(func() {
				Expect(usage.Append(ctx, entry)).To(Succeed())
				entry.ImageHash = "def456"
				Expect(usage.Append(ctx, entry)).To(Succeed())
				Expect(usage.Append(ctx, entry)).To(Succeed())
			})

			It("returns each distinct hash", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(set).To(HaveLen(2))
				Expect(set.Has("abc123")).To(BeTrue())
				Expect(set.Has("def456")).To(BeTrue())
			})
		})

		When("the image_hash column is missing", func() {
			BeforeEach(func() {
				Expect(os.WriteFile(path, []byte("timestamp,image_path\n2024-01-15T10:30:00Z,a.jpg\n"), 0644)).To(Succeed())
			})

			It("returns an empty set with ErrMalformed", func() {
				Expect(err).To(MatchError(ledger.ErrMalformed))
				Expect(set).NotTo(BeNil())
				Expect(set).To(BeEmpty())
			})
		})

		When("the column order differs and some rows are short", func() {
			BeforeEach(func() {
				Expect(os.WriteFile(path, []byte("image_hash,timestamp\nfff,2024\n\nggg\n"), 0644)).To(Succeed())
			})

			It("reads the column by name", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(set).To(HaveLen(2))
				Expect(set.Has("fff")).To(BeTrue())
				Expect(set.Has("ggg")).To(BeTrue())
			})
		})
	})
})
