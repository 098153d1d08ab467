package mcpserver

// CardFormatContract describes the canonical composite card format that
// LLM consumers should follow when reading or producing cards.
const CardFormatContract = `# Annex Card Format Contract

Every composite card stored in Annex MUST follow this structure.

## Structure

` + "```" + `text
UUID: 123e4567-e89b-12d3-a456-426614174000
CLASSIFICATION: internal
source_file: "reports/intake-2025-06-01.txt"
KEYVALUE_PAIRS:
collected_by: field-team-2
region: northeast
CONTENT:
=== ORIGINAL CONTENT START ===
Verbatim text copied from the source document. This block is the
canonical content; annotations never modify it.
=== ORIGINAL CONTENT END ===
=== USER ADDED START ===
Analyst commentary goes here, outside the original block.
=== USER ADDED END ===
TAGS:
tag_ref: 9f8e7d6c-5b4a-3210-fedc-ba9876543210
=== END CARD ===
` + "```" + `

## Rules

1. **Header lines come first.** Plain ` + "`" + `KEY: value` + "`" + ` pairs; ` + "`" + `UUID` + "`" + ` is required
   and identifies the card everywhere else in the system.
2. **` + "`" + `source_file` + "`" + ` is double-quoted** and names the source document the
   original content was copied from.
3. **The ORIGINAL CONTENT delimiters are sacred.** Text between them must
   stay byte-identical to the source; edits belong in the USER ADDED block.
4. **Delimiter lines must match exactly**, alone on their line. A card
   missing the ORIGINAL pair is still readable but flagged.
5. **Never put metadata inside the content blocks.** UUIDs, ` + "`" + `key: value` + "`" + `
   lines, and ISO timestamps inside extracted content trip the
   contamination validator and the content is withheld.
6. **Tag references** use ` + "`" + `tag_ref: <uuid>` + "`" + ` lines in the TAGS section.
7. **Files end with the** ` + "`" + `=== END CARD ===` + "`" + ` **marker** and use UTF-8.

## References in annotations

- Character ranges: ` + "`" + `<document-id>@<start>-<end>` + "`" + ` (half-open, e.g. ` + "`" + `card-1@120-145` + "`" + `).
- CSV cells: ` + "`" + `<document-id>[row,col]` + "`" + ` (zero-based, e.g. ` + "`" + `ledger.csv[3,2]` + "`" + `).
- Entity references in text use wikilinks: ` + "`" + `[[type:Canonical Name|display]]` + "`" + `,
  or ` + "`" + `[[Canonical Name]]` + "`" + ` to let the type be inferred.
`
