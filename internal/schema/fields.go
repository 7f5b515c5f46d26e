package schema

// FieldDefinitions gives the LLM per-field extraction guidance. Keyed by
// category then field name, matching Categories.
var FieldDefinitions = map[string]map[string]string{
	"Org Details": {
		"Organization Name": "Full legal name of the contracting organization (parent company/business entity). " +
			"If a brand is mentioned elsewhere in the document, map that brand to Organization Name; otherwise use " +
			"the primary contracting entity's legal name. Format: as stated in the agreement.",
	},
	"Contract Lifecycle": {
		"Party A": "Name of the first party to the agreement (typically the client or service recipient). " +
			"Format: full legal entity name as stated in the contract header.",
		"Party B": "Name of the second party to the agreement (typically the vendor or service provider). " +
			"Format: full legal entity name as stated in the contract header.",
		"Execution Date": "Date when both parties have signed the agreement. Format: ISO yyyy-mm-dd. " +
			"If ambiguous, return the literal text found with \"(AmbiguousDate)\" appended.",
		"Effective Date": "Date the MSA becomes legally effective (may differ from execution). Format: ISO yyyy-mm-dd. " +
			"If ambiguous, return the literal text found with \"(AmbiguousDate)\" appended.",
		"Expiration / Termination Date": "Date on which the agreement expires or terminates unless renewed. " +
			"Format: ISO yyyy-mm-dd, or \"Evergreen\" if the contract auto-renews.",
		"Authorized Signatory - Party A": "Name and designation of the individual authorized to sign on behalf of " +
			"Party A, from the signature page or execution section. Multiple signatories combined with semicolons.",
		"Authorized Signatory - Party B": "Name and designation of the individual authorized to sign on behalf of " +
			"Party B, from the signature page or execution section. Multiple signatories combined with semicolons.",
	},
	"Business Terms": {
		"Document Type": "Type of agreement as stated by the title or heading. Must be exactly \"MSA\" or \"NDA\". " +
			"If the document mixes both, use \"MSA\" when commercial terms (pricing, payment, termination) exist, else \"NDA\".",
		"Termination Notice Period": "Minimum written notice required to terminate the agreement. Normalize units " +
			"(\"1 month\" = \"30 days\", \"1 year\" = \"365 days\"). Format: \"<number> days\".",
	},
	"Commercial Operations": {
		"Billing Frequency":           "How often invoices are issued under the MSA. Examples: Monthly, Quarterly, Milestone-based, As-invoiced.",
		"Payment Terms":               "Time allowed for payment after invoice submission, as stated (e.g. Net 30 days from invoice date).",
		"Expense Reimbursement Rules": "Terms governing travel, lodging, and other reimbursable expenses, as stated.",
	},
	"Finance Terms": {
		"Pricing Model Type": "Commercial structure. Must be exactly one of \"Fixed\", \"T&M\", \"Subscription\", " +
			"\"Hybrid\" (case-sensitive). Normalize \"Time and Materials\" to \"T&M\".",
		"Currency": "Settlement currency. Allowlist: \"USD\" or \"INR\" only. Infer from symbols ($ means USD, " +
			"₹ means INR). If absent or outside the allowlist, return \"" + NotFound + "\".",
		"Contract Value": "Total contract value if explicitly stated. Remove currency symbols and commas, always " +
			"include decimals (e.g. \"50000.00\"). Many MSAs defer value to Work Orders; then return \"" + NotFound + "\".",
	},
	"Risk & Compliance": {
		"Indemnification Clause Reference": "Clause defining indemnity obligations. Format: section heading/number " +
			"and a 1-2 sentence excerpt.",
		"Limitation of Liability Cap": "Maximum financial liability for either party, as stated.",
		"Insurance Requirements":      "Types and minimum coverage levels required, as stated.",
		"Warranties / Disclaimers":    "Assurances or disclaimers related to service performance or quality, as stated.",
	},
	"Legal Terms": {
		"Governing Law": "Jurisdiction whose laws govern the agreement, including venue/court location if specified.",
		"Confidentiality Clause Reference": "Clause title/number and brief excerpt describing confidentiality " +
			"obligations. \"" + NotFound + "\" if no explicit clause exists.",
		"Force Majeure Clause Reference": "Clause title/number and short excerpt describing relief due to " +
			"extraordinary events. \"" + NotFound + "\" if no explicit clause exists.",
	},
}
