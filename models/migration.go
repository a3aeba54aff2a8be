package models

import (
	"log"

	"github.com/carteiralab/carteira_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Ativo{},
		&Movimentacao{},
		&Provento{},
		&EvolucaoPatrimonial{},
		&PrecoAtivoCache{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
