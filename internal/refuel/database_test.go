package refuel

import (
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("BoltDB", func() {
	var db *BoltDB

	BeforeEach(func() {
		var err error
		db, err = NewBoltDB(filepath.Join(GinkgoT().TempDir(), "test.db"))
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if db != nil {
			db.Close()
		}
	})

	newRecord := func(id string, date time.Time) *Record {
		return &Record{
			ID:            id,
			Date:          date,
			Amount:        60,
			Liters:        40,
			PricePerLiter: 1.5,
			Odometer:      50400,
			TripDistance:  400,
			IsFullTank:    true,
			Notes:         "note " + id,
			CreatedAt:     date,
			UpdatedAt:     date,
		}
	}

	Describe("SaveRefuel and GetRefuel", func() {
		When("the record exists", func() {
			BeforeEach(func() {
				Expect(db.SaveRefuel(newRecord("r1", day(2)))).To(Succeed())
			})

			It("should return every field", func() {
				record, err := db.GetRefuel("r1")
				Expect(err).NotTo(HaveOccurred())
				Expect(record.Amount).To(Equal(60.0))
				Expect(record.Odometer).To(Equal(50400.0))
				Expect(record.TripDistance).To(Equal(400.0))
				Expect(record.Notes).To(Equal("note r1"))
				Expect(record.Date).To(BeTemporally("==", day(2)))
			})

			It("should replace it on a second save", func() {
				updated := newRecord("r1", day(2))
				updated.Amount = 65
				Expect(db.SaveRefuel(updated)).To(Succeed())

				record, err := db.GetRefuel("r1")
				Expect(err).NotTo(HaveOccurred())
				Expect(record.Amount).To(Equal(65.0))
			})
		})

		When("the record does not exist", func() {
			It("returns a not found error", func() {
				_, err := db.GetRefuel("nonexistent")
				Expect(err).To(MatchError(ErrNotFound))
				Expect(err).To(MatchError("refuel nonexistent: not found"))
			})
		})

		When("the record has no ID", func() {
			It("returns an error", func() {
				Expect(db.SaveRefuel(&Record{})).To(MatchError(ContainSubstring("id is required")))
			})
		})
	})

	Describe("ListRefuels", func() {
		When("records exist", func() {
			BeforeEach(func() {
				Expect(db.SaveRefuel(newRecord("b", day(1)))).To(Succeed())
				Expect(db.SaveRefuel(newRecord("a", day(5)))).To(Succeed())
				Expect(db.SaveRefuel(newRecord("c", day(3)))).To(Succeed())
			})

			It("should return them newest first", func() {
				records, err := db.ListRefuels()
				Expect(err).NotTo(HaveOccurred())
				Expect(records).To(HaveLen(3))
				Expect([]string{records[0].ID, records[1].ID, records[2].ID}).To(Equal([]string{"a", "c", "b"}))
			})
		})

		When("no records exist", func() {
			It("should return an empty list", func() {
				records, err := db.ListRefuels()
				Expect(err).NotTo(HaveOccurred())
				Expect(records).NotTo(BeNil())
				Expect(records).To(BeEmpty())
			})
		})
	})

	Describe("DeleteRefuel", func() {
		When("the record exists", func() {
			BeforeEach(func() {
				Expect(db.SaveRefuel(newRecord("r1", day(1)))).To(Succeed())
			})

			It("should remove it", func() {
				Expect(db.DeleteRefuel("r1")).To(Succeed())
				_, err := db.GetRefuel("r1")
				Expect(err).To(MatchError(ErrNotFound))
			})
		})

		When("the record does not exist", func() {
			It("returns a not found error", func() {
				Expect(db.DeleteRefuel("nonexistent")).To(MatchError(ErrNotFound))
			})
		})
	})

	Describe("NewBoltDB", func() {
		When("the path is not writable", func() {
			It("returns the error", func() {
				_, err := NewBoltDB(filepath.Join(GinkgoT().TempDir(), "missing", "dir", "test.db"))
				Expect(err).To(MatchError(ContainSubstring("opening boltdb")))
			})
		})
	})
})
