// Package prompt holds the fixed instruction texts sent to the models.
package prompt

import (
	"strings"
	"text/template"
)

// NotInContext is the reply the answer model is told to give when the
// retrieved context cannot answer the question.
const NotInContext = "The provided context does not contain this information."

// FinancialQA is the answer template. It is rendered with Context and Query.
var FinancialQA = template.Must(template.New("financial_qa").Parse(`
You are an assistant that answers questions about bank statements using only the context supplied below.
Follow these rules without exception:

1. Use ONLY the information inside <context>.
2. If the context does not contain the answer, reply exactly:
   "` + NotInContext + `"
3. Never guess, assume, invent or fabricate details.
4. Keep answers accurate and concise.
5. When asked for analysis or explanation, rely only on what the context supports.
6. Copy numerical values exactly as they appear in the context; do not round, convert or estimate them.
7. If the question is unrelated to the context, politely say that you can only answer questions supported by the statements on record.

---------------------------
<context>
{{.Context}}
</context>
---------------------------

User Query:
{{.Query}}

Your Answer (based strictly on context):
`))

// Data fills FinancialQA.
type Data struct {
	Context string
	Query   string
}

// Render fills FinancialQA with the joined context block and the user query.
func Render(context, query string) (string, error) {
	var sb strings.Builder
	if err := FinancialQA.Execute(&sb, Data{Context: context, Query: query}); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// ExtractionInstructions is sent with each statement image to the vision model.
const ExtractionInstructions = `Analyze this bank statement image and extract the following information as JSON.
Use null for any field that is not present.

Fields:
1. bank_name: name of the bank
2. account_number: account number, digits only
3. account_holder_name: name of the account holder
4. phone_number: contact phone number
5. statement_from_date: first day of the statement period, as a string such as "01-01-2024"
6. statement_to_date: last day of the statement period, as a string such as "31-01-2024"
7. opening_balance: opening balance as a number, such as 50000.00
8. closing_balance: closing balance as a number, such as 75000.00
9. total_debits: total debits or withdrawals as a number
10. total_credits: total credits or deposits as a number
11. currency: currency code such as "INR", "USD" or "EUR"
12. statement_date_generated: date the statement was generated
13. branch_name: branch name
14. statement_number: statement number or identifier

Notes:
- Look for phrases like "from X to Y", "between X and Y" or "period from X to Y".
- Amount fields must be plain numbers without currency symbols or separators.
- Return ONLY valid JSON with no other text.`
