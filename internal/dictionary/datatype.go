package dictionary

import (
	"errors"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Kind is the primitive representation underlying a DataType.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindFloat
	KindChar
	KindBoolean
	KindTimestamp
	KindData
)

// String returns a lower-case name for the kind.
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindChar:
		return "char"
	case KindBoolean:
		return "boolean"
	case KindTimestamp:
		return "timestamp"
	case KindData:
		return "data"
	default:
		return "invalid"
	}
}

// DataType is a FIX data type as named in repository XML files.
type DataType int

const (
	TypeString DataType = iota
	TypeChar
	TypeBoolean
	TypeFloat
	TypeAmt
	TypePrice
	TypePriceOffset
	TypeQty
	TypePercentage
	TypeInt
	TypeDayOfMonth
	TypeLength
	TypeNumInGroup
	TypeSeqNum
	TypeTagNum
	TypeData
	TypeMonthYear
	TypeMultipleCharValue
	TypeMultipleStringValue
	TypeCurrency
	TypeExchange
	TypeLanguage
	TypeCountry
	TypeLocalMktDate
	TypeUTCDateOnly
	TypeUTCTimeOnly
	TypeUTCTimestamp
	TypeXMLData
)

var dataTypeNames = map[DataType]string{
	TypeString:              "STRING",
	TypeChar:                "CHAR",
	TypeBoolean:             "BOOLEAN",
	TypeFloat:               "FLOAT",
	TypeAmt:                 "AMT",
	TypePrice:               "PRICE",
	TypePriceOffset:         "PRICEOFFSET",
	TypeQty:                 "QTY",
	TypePercentage:          "PERCENTAGE",
	TypeInt:                 "INT",
	TypeDayOfMonth:          "DAYOFMONTH",
	TypeLength:              "LENGTH",
	TypeNumInGroup:          "NUMINGROUP",
	TypeSeqNum:              "SEQNUM",
	TypeTagNum:              "TAGNUM",
	TypeData:                "DATA",
	TypeMonthYear:           "MONTHYEAR",
	TypeMultipleCharValue:   "MULTIPLECHARVALUE",
	TypeMultipleStringValue: "MULTIPLESTRINGVALUE",
	TypeCurrency:            "CURRENCY",
	TypeExchange:            "EXCHANGE",
	TypeLanguage:            "LANGUAGE",
	TypeCountry:             "COUNTRY",
	TypeLocalMktDate:        "LOCALMKTDATE",
	TypeUTCDateOnly:         "UTCDATEONLY",
	TypeUTCTimeOnly:         "UTCTIMEONLY",
	TypeUTCTimestamp:        "UTCTIMESTAMP",
	TypeXMLData:             "XMLDATA",
}

// Older repositories (FIX.4.0 - FIX.4.2) use different spellings.
var dataTypeAliases = map[string]DataType{
	"MULTIPLEVALUESTRING": TypeMultipleStringValue,
	"UTCDATE":             TypeUTCDateOnly,
	"DATE":                TypeUTCDateOnly,
	"TIME":                TypeUTCTimestamp,
}

// ParseDataType converts a repository type name (case-insensitive) to a DataType.
func ParseDataType(s string) (DataType, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for t, n := range dataTypeNames {
		if n == name {
			return t, nil
		}
	}
	if t, ok := dataTypeAliases[name]; ok {
		return t, nil
	}
	return 0, errors.New("unknown data type " + strconv.Quote(s))
}

// String returns the repository spelling of the type.
func (t DataType) String() string {
	if n, ok := dataTypeNames[t]; ok {
		return n
	}
	return "INVALID"
}

// Kind returns the primitive representation of t.
func (t DataType) Kind() Kind {
	switch t {
	case TypeInt, TypeDayOfMonth, TypeLength, TypeNumInGroup, TypeSeqNum, TypeTagNum:
		return KindInt
	case TypeFloat, TypeAmt, TypePrice, TypePriceOffset, TypeQty, TypePercentage:
		return KindFloat
	case TypeChar:
		return KindChar
	case TypeBoolean:
		return KindBoolean
	case TypeUTCTimestamp, TypeUTCTimeOnly, TypeUTCDateOnly, TypeLocalMktDate:
		return KindTimestamp
	case TypeData, TypeXMLData:
		return KindData
	default:
		return KindString
	}
}

// Time layouts accepted for the timestamp kinds, most precise first.
var timeLayouts = map[DataType][]string{
	TypeUTCTimestamp: {
		"20060102-15:04:05.000000000",
		"20060102-15:04:05.000000",
		"20060102-15:04:05.000",
		"20060102-15:04:05",
	},
	TypeUTCTimeOnly: {
		"15:04:05.000000000",
		"15:04:05.000000",
		"15:04:05.000",
		"15:04:05",
	},
	TypeUTCDateOnly:  {"20060102"},
	TypeLocalMktDate: {"20060102"},
}

// TimeLayouts returns the accepted layouts for a timestamp type, or nil.
func (t DataType) TimeLayouts() []string {
	return timeLayouts[t]
}

// ErrIncorrectDataFormat indicates a value that does not parse as its type.
var ErrIncorrectDataFormat = errors.New("dictionary: incorrect data format")

// Validate checks that v is a well-formed value of type t. Data fields
// accept any bytes.
func (t DataType) Validate(v string) error {
	switch t.Kind() {
	case KindInt:
		if !isInteger(v) {
			return ErrIncorrectDataFormat
		}
		if t == TypeLength || t == TypeNumInGroup || t == TypeSeqNum || t == TypeTagNum {
			if strings.HasPrefix(v, "-") {
				return ErrIncorrectDataFormat
			}
		}
	case KindFloat:
		if !isDecimal(v) {
			return ErrIncorrectDataFormat
		}
	case KindChar:
		if utf8.RuneCountInString(v) != 1 {
			return ErrIncorrectDataFormat
		}
	case KindBoolean:
		if v != "Y" && v != "N" {
			return ErrIncorrectDataFormat
		}
	case KindTimestamp:
		for _, layout := range timeLayouts[t] {
			if len(layout) == len(v) {
				if _, err := time.Parse(layout, v); err == nil {
					return nil
				}
			}
		}
		return ErrIncorrectDataFormat
	case KindData:
		return nil
	default:
		if v == "" {
			return ErrIncorrectDataFormat
		}
	}
	return nil
}

func isInteger(v string) bool {
	if strings.HasPrefix(v, "-") {
		v = v[1:]
	}
	if v == "" {
		return false
	}
	for i := 0; i < len(v); i++ {
		if v[i] < '0' || v[i] > '9' {
			return false
		}
	}
	return true
}

func isDecimal(v string) bool {
	if strings.HasPrefix(v, "-") {
		v = v[1:]
	}
	digits, dots := 0, 0
	for i := 0; i < len(v); i++ {
		switch {
		case v[i] >= '0' && v[i] <= '9':
			digits++
		case v[i] == '.':
			dots++
		default:
			return false
		}
	}
	return digits > 0 && dots <= 1
}
