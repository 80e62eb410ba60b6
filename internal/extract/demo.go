package extract

// Demo replies go through the same parser as live replies, so the demo record
// always has the exact shape of a live one.

const positionDemoReply = `{
  "title": "歯科衛生士",
  "employmentType": "full_time",
  "salaryMin": 250000,
  "salaryMax": 320000,
  "hourlyMin": null,
  "hourlyMax": null,
  "description": "予防歯科を中心としたメインテナンス、スケーリング、TBI、院内の感染対策業務。",
  "requirements": "歯科衛生士免許をお持ちの方。ブランク可、新卒歓迎。",
  "benefits": "社会保険完備、交通費支給(月3万円まで)、賞与年2回、制服貸与、退職金制度。",
  "workingHours": "9:00〜18:30(休憩90分)、土曜は9:00〜17:00",
  "holidays": "木曜・日曜・祝日、夏季休暇、年末年始休暇、有給休暇"
}`

const competitorDemoReply = `{
  "clinicName": "さくら歯科クリニック",
  "address": "東京都世田谷区三軒茶屋1-2-3 さくらビル2F",
  "website": "https://example.com/sakura-dental",
  "conditions": [
    {
      "jobTitle": "歯科衛生士",
      "employmentType": "full_time",
      "salaryMin": 260000,
      "salaryMax": 350000,
      "hourlyMin": null,
      "hourlyMax": null,
      "benefits": "社会保険完備、賞与年2回、交通費全額支給",
      "workingHours": "9:30〜19:00(休憩120分)",
      "holidays": "水曜・日曜・祝日、年間休日120日",
      "source": "採用情報ページ 常勤歯科衛生士"
    },
    {
      "jobTitle": "歯科衛生士",
      "employmentType": "part_time",
      "salaryMin": null,
      "salaryMax": null,
      "hourlyMin": 1800,
      "hourlyMax": 2200,
      "benefits": "交通費支給、制服貸与",
      "workingHours": "週2日〜、1日4時間〜応相談",
      "holidays": "シフト制",
      "source": "採用情報ページ パート歯科衛生士"
    },
    {
      "jobTitle": "歯科助手",
      "employmentType": "part_time",
      "salaryMin": null,
      "salaryMax": null,
      "hourlyMin": 1200,
      "hourlyMax": 1400,
      "benefits": "交通費支給、未経験者研修あり",
      "workingHours": "14:00〜19:00",
      "holidays": "水曜・日曜・祝日",
      "source": "採用情報ページ 歯科助手"
    }
  ]
}`
