// Package repository implements the domain repositories on the document
// store adapter. Collection paths mirror the ownership hierarchy:
// Farm -> (Metadata, Animal*) -> (Record*, HealthEvent*, Vaccination*).
package repository

import "fmt"

const (
	colUsers     = "users"
	colFarms     = "farms"
	colJoinCodes = "join_codes"

	metaKeyInformation = "information"
	metaKeyStats       = "stats"

	// SubtreeRecords and friends name the purgeable animal subtrees.
	SubtreeRecords      = "records"
	SubtreeHealthEvents = "health_events"
	SubtreeVaccinations = "vaccinations"
)

func colMeta(farmID string) string {
	return fmt.Sprintf("farms/%s/meta", farmID)
}

func colBreeds(farmID string) string {
	return fmt.Sprintf("farms/%s/breeds", farmID)
}

func colStockHistory(farmID string) string {
	return fmt.Sprintf("farms/%s/stock_history", farmID)
}

func colAnimals(farmID string) string {
	return fmt.Sprintf("farms/%s/animals", farmID)
}

func colAnimalSubtree(farmID, animalID, subtree string) string {
	return fmt.Sprintf("farms/%s/animals/%s/%s", farmID, animalID, subtree)
}
