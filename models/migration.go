package models

import (
	"log"
	"os"
	"strings"

	"github.com/mmdatafocus/rentals_backend/config"
)

// MigrateTable migrates the tables this service owns. The rental tables are
// owned by the CRUD service and are only created when MIGRATE_RENTAL_TABLES
// is set (local development).
func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&LandlordProviderConfig{}, &LandlordPaymentPreference{},
		&PendingTransaction{}, &InboundNotification{}, &Payment{},
	)
	if err != nil {
		log.Fatal(err)
	}

	if strings.EqualFold(os.Getenv("MIGRATE_RENTAL_TABLES"), "true") {
		if err := db.AutoMigrate(&Property{}, &Unit{}, &Tenant{}, &Lease{}, &Invoice{}, &ServiceChargeInvoice{}); err != nil {
			log.Fatal(err)
		}
	}
}
