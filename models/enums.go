package models

import (
	"database/sql/driver"
	"errors"
	"fmt"
)

// CategoriaTipo selects the pricing strategy for an Ativo:
// fixed income is priced at amortized average cost, everything else
// goes through the quote provider.
type CategoriaTipo string

const (
	CategoriaRendaFixa     CategoriaTipo = "RENDA_FIXA"
	CategoriaRendaVariavel CategoriaTipo = "RENDA_VARIAVEL"
	CategoriaFundos        CategoriaTipo = "FUNDOS"
	CategoriaExterior      CategoriaTipo = "EXTERIOR"
)

func (t CategoriaTipo) IsRendaFixa() bool {
	return t == CategoriaRendaFixa
}

func (t *CategoriaTipo) Scan(value interface{}) error {
	s, err := scanEnumString(value)
	if err != nil {
		return err
	}
	switch CategoriaTipo(s) {
	case CategoriaRendaFixa, CategoriaRendaVariavel, CategoriaFundos, CategoriaExterior:
		*t = CategoriaTipo(s)
		return nil
	}
	return fmt.Errorf("invalid categoria tipo %q", s)
}

func (t CategoriaTipo) Value() (driver.Value, error) {
	return string(t), nil
}

type Moeda string

const (
	MoedaBRL Moeda = "BRL"
	MoedaUSD Moeda = "USD"
	MoedaEUR Moeda = "EUR"
	MoedaGBP Moeda = "GBP"
)

func (m *Moeda) Scan(value interface{}) error {
	s, err := scanEnumString(value)
	if err != nil {
		return err
	}
	switch Moeda(s) {
	case MoedaBRL, MoedaUSD, MoedaEUR, MoedaGBP:
		*m = Moeda(s)
		return nil
	}
	return fmt.Errorf("invalid moeda %q", s)
}

func (m Moeda) Value() (driver.Value, error) {
	return string(m), nil
}

// Operacao is the movement kind. Quantities are stored positive for all
// kinds; the sign of the effect comes from the kind during replay.
type Operacao string

const (
	OperacaoCompra        Operacao = "COMPRA"
	OperacaoVenda         Operacao = "VENDA"
	OperacaoBonificacao   Operacao = "BONIFICACAO"
	OperacaoGrupamento    Operacao = "GRUPAMENTO"
	OperacaoDesdobramento Operacao = "DESDOBRAMENTO"
)

func (o *Operacao) Scan(value interface{}) error {
	s, err := scanEnumString(value)
	if err != nil {
		return err
	}
	switch Operacao(s) {
	case OperacaoCompra, OperacaoVenda, OperacaoBonificacao, OperacaoGrupamento, OperacaoDesdobramento:
		*o = Operacao(s)
		return nil
	}
	return fmt.Errorf("invalid operacao %q", s)
}

func (o Operacao) Value() (driver.Value, error) {
	return string(o), nil
}

func scanEnumString(value interface{}) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	}
	return "", errors.New("enum value must be a string")
}
