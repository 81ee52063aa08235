package domain

import (
	"fmt"
	"sort"

	"github.com/dustin/go-humanize"
)

const (
	maxIndexesPerTable = 5
	largeTableBytes    = 100 << 20
)

// StructureIssue names a schema-level problem found by AnalyzeStructure.
type StructureIssue string

const (
	StructureMissingPrimaryKey StructureIssue = "Missing Primary Key"
	StructureManyIndexes       StructureIssue = "Many Indexes"
	StructureLargeTable        StructureIssue = "Large Table"
)

// StructureFinding is one schema-level recommendation for a table.
type StructureFinding struct {
	Issue          StructureIssue `json:"issue"`
	Table          string         `json:"table"`
	Description    string         `json:"description"`
	Recommendation string         `json:"recommendation"`
}

// ForeignKeyLink is a foreign key together with the table that owns it.
type ForeignKeyLink struct {
	Table string `json:"table"`
	ForeignKey
}

// StructureOverview counts what the schema holds.
type StructureOverview struct {
	Tables      int            `json:"tables"`
	Indexes     int            `json:"indexes"`
	ForeignKeys int            `json:"foreign_keys"`
	Engines     map[string]int `json:"engines,omitempty"`
	TotalBytes  int64          `json:"total_bytes"`
	SizeHuman   string         `json:"size_human"`
}

// StructureReport is the schema-wide review behind analyze_database_structure.
type StructureReport struct {
	Overview    StructureOverview  `json:"overview"`
	Tables      []TableMetadata    `json:"tables"`
	ForeignKeys []ForeignKeyLink   `json:"foreign_keys"`
	Findings    []StructureFinding `json:"findings"`
}

// AnalyzeStructure reviews every table in schema. Tables are reported in
// name order, and findings are grouped by issue in the order missing primary
// key, many indexes, large table.
func AnalyzeStructure(schema SchemaMetadata) *StructureReport {
	names := make([]string, 0, len(schema))
	for name := range schema {
		names = append(names, name)
	}
	sort.Strings(names)

	report := &StructureReport{
		Tables:      make([]TableMetadata, 0, len(names)),
		ForeignKeys: []ForeignKeyLink{},
		Findings:    []StructureFinding{},
	}
	ov := &report.Overview
	var missingPK, manyIndexes, large []StructureFinding
	for _, name := range names {
		t := schema[name]
		report.Tables = append(report.Tables, t)

		ov.Tables++
		ov.Indexes += len(t.Indexes)
		ov.ForeignKeys += len(t.ForeignKeys)
		ov.TotalBytes += t.Stats.DataBytes + t.Stats.IndexBytes
		if t.Stats.Engine != "" {
			if ov.Engines == nil {
				ov.Engines = make(map[string]int)
			}
			ov.Engines[t.Stats.Engine]++
		}
		for _, fk := range t.ForeignKeys {
			report.ForeignKeys = append(report.ForeignKeys, ForeignKeyLink{Table: t.Name, ForeignKey: fk})
		}

		if !t.HasPrimaryKey() {
			missingPK = append(missingPK, StructureFinding{
				Issue:          StructureMissingPrimaryKey,
				Table:          t.Name,
				Description:    fmt.Sprintf("Table '%s' has no primary key, which can cause performance issues.", t.Name),
				Recommendation: "Consider adding a primary key to this table.",
			})
		}
		if n := len(t.Indexes); n > maxIndexesPerTable {
			manyIndexes = append(manyIndexes, StructureFinding{
				Issue:          StructureManyIndexes,
				Table:          t.Name,
				Description:    fmt.Sprintf("Table '%s' has %d indexes, which might impact INSERT/UPDATE performance.", t.Name, n),
				Recommendation: "Consider reviewing these indexes to ensure they are all necessary.",
			})
		}
		if t.Stats.DataBytes > largeTableBytes {
			large = append(large, StructureFinding{
				Issue:          StructureLargeTable,
				Table:          t.Name,
				Description:    fmt.Sprintf("Table '%s' holds %s of data.", t.Name, humanize.IBytes(uint64(t.Stats.DataBytes))),
				Recommendation: "Consider partitioning or archiving old rows.",
			})
		}
	}
	ov.SizeHuman = humanize.IBytes(uint64(ov.TotalBytes))

	report.Findings = append(report.Findings, missingPK...)
	report.Findings = append(report.Findings, manyIndexes...)
	report.Findings = append(report.Findings, large...)
	return report
}
