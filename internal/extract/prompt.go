package extract

import "strings"

const systemPrompt = "あなたは歯科・医療クリニックの求人ページから採用条件を抽出するアシスタントです。指示されたJSON以外は出力しないでください。"

const sharedRules = `
変換ルール:
- 年収のみ記載されている場合は12で割って月給に換算し、整数に丸めてください。
- 「25万円」「25.5万円」のような表記は円単位の整数にしてください(例: 250000, 255000)。
- 数値は円単位の0以上の整数のみ。カンマ・単位・範囲記号は含めないでください。
- 正社員・常勤など月給制の場合は salaryMin/salaryMax を、パート・アルバイトなど時給制の場合は hourlyMin/hourlyMax を埋め、もう一方は null にしてください。両方を埋めないでください。
- employmentType は "full_time" "part_time" "contract" "other" のいずれか、判断できなければ null。
- 読み取れない・記載のない項目は推測せず null にしてください。
- 出力はJSONオブジェクト1つのみ。説明文、前置き、コメントは一切書かないでください。
`

const positionTemplate = `以下は求人ページから抽出したテキストです。この求人の募集条件を次のJSON形式で出力してください。

{
  "title": string | null,            // 職種名
  "employmentType": string | null,   // full_time | part_time | contract | other
  "salaryMin": integer | null,       // 月給下限(円)
  "salaryMax": integer | null,       // 月給上限(円)
  "hourlyMin": integer | null,       // 時給下限(円)
  "hourlyMax": integer | null,       // 時給上限(円)
  "description": string | null,      // 仕事内容
  "requirements": string | null,     // 応募資格
  "benefits": string | null,         // 福利厚生・待遇
  "workingHours": string | null,     // 勤務時間
  "holidays": string | null          // 休日・休暇
}
` + sharedRules + `
ページ本文:
`

const competitorTemplate = `以下は競合クリニックの採用ページから抽出したテキストです。クリニック情報と募集条件を次のJSON形式で出力してください。

{
  "clinicName": string | null,
  "address": string | null,
  "website": string | null,
  "conditions": [
    {
      "jobTitle": string | null,
      "employmentType": string | null, // full_time | part_time | contract | other
      "salaryMin": integer | null,     // 月給下限(円)
      "salaryMax": integer | null,     // 月給上限(円)
      "hourlyMin": integer | null,     // 時給下限(円)
      "hourlyMax": integer | null,     // 時給上限(円)
      "benefits": string | null,
      "workingHours": string | null,
      "holidays": string | null,
      "source": string | null          // 記載箇所(見出しなど)
    }
  ]
}
` + sharedRules + `- 職種と雇用形態の組み合わせごとに conditions の要素を1つずつ作成してください。異なる職種や雇用形態をまとめないでください。
- 募集条件が見つからない場合、conditions は空配列にしてください。

ページ本文:
`

// BuildPrompt appends the document text verbatim to the schema's template.
func BuildPrompt(schema Schema, doc Document) string {
	var b strings.Builder
	b.Grow(len(schema.Template) + len(doc.Text))
	b.WriteString(schema.Template)
	b.WriteString(doc.Text)
	return b.String()
}
